package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"carbonlock/marketplace-portal/internal/contracts"
	"carbonlock/marketplace-portal/internal/marketplace"
	"carbonlock/marketplace-portal/internal/notifications"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2E7D32"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D32F2F"))

	// badgeColors maps status badge classes onto terminal colours.
	badgeColors = map[string]lipgloss.Color{
		"secondary": lipgloss.Color("#9E9E9E"),
		"success":   lipgloss.Color("#43A047"),
		"warning":   lipgloss.Color("#FB8C00"),
		"info":      lipgloss.Color("#1E88E5"),
		"light":     lipgloss.Color("#BDBDBD"),
	}
)

func toastStyle(kind notifications.ToastType) lipgloss.Style {
	switch kind {
	case notifications.ToastSuccess:
		return lipgloss.NewStyle().Foreground(badgeColors["success"])
	case notifications.ToastDanger:
		return errorStyle
	default:
		return lipgloss.NewStyle().Foreground(badgeColors["info"])
	}
}

func statusBadge(s contracts.ContractStatus) string {
	return lipgloss.NewStyle().Foreground(badgeColors[contracts.StatusColor(s)]).Render(string(s))
}

func contractTable(rows []contracts.Row) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "Buyer", "Seller", "Amount", "Price", "Total", "Year", "Status").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		t.Row(
			strconv.FormatUint(r.ID, 10),
			r.BuyerShort,
			r.SellerShort,
			r.AmountLabel,
			r.PriceLabel,
			r.TotalLabel,
			strconv.Itoa(r.DeliveryYear),
			statusBadge(r.Status),
		)
	}
	return t.Render()
}

func renderView(v contracts.View) string {
	var b strings.Builder
	b.WriteString(contractTable(contracts.Rows(v.Items)))
	b.WriteString("\n")
	if v.TotalCount == 0 {
		b.WriteString(mutedStyle.Render("No contracts found."))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("Page %d of %d (%d contracts)", v.Query.Page, v.TotalPages, v.TotalCount)))
	b.WriteString("\n")
	return b.String()
}

func renderDetails(d marketplace.Details) string {
	var b strings.Builder
	r := d.Contract
	b.WriteString(titleStyle.Render(fmt.Sprintf("Contract #%d", r.ID)))
	b.WriteString(" ")
	b.WriteString(statusBadge(r.Status))
	b.WriteString("\n")

	buyer := r.BuyerOrEmpty()
	if buyer == "" {
		buyer = "N/A"
	}
	fields := [][2]string{
		{"Buyer", buyer},
		{"Seller", r.Seller},
		{"Amount", r.AmountLabel},
		{"Price", r.PriceLabel},
		{"Total", r.TotalLabel},
		{"Delivery year", strconv.Itoa(r.DeliveryYear)},
	}
	if len(d.Next) > 0 {
		fields = append(fields, [2]string{"Next", strings.Join(d.Next, ", ")})
	}
	for _, f := range fields {
		b.WriteString(fmt.Sprintf("  %-14s %s\n", f[0]+":", f[1]))
	}

	b.WriteString(titleStyle.Render("Events"))
	b.WriteString("\n")
	if len(d.Events) == 0 {
		b.WriteString("  " + mutedStyle.Render(d.Message) + "\n")
		return b.String()
	}
	for _, e := range d.Events {
		line := fmt.Sprintf("  %s  %s", contracts.FormatTimestamp(e.Timestamp), e.EventType)
		if e.Details != nil {
			line += "  " + mutedStyle.Render(*e.Details)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func renderCredits(credits []contracts.Credit) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "Owner", "Risk", "History").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, cr := range credits {
		risk := "-"
		if cr.RiskScore != nil {
			risk = strconv.Itoa(int(*cr.RiskScore))
		}
		history := make([]string, len(cr.RiskScoreHistory))
		for i, h := range cr.RiskScoreHistory {
			history[i] = strconv.Itoa(h)
		}
		t.Row(strconv.FormatUint(cr.ID, 10), contracts.Abbreviate(cr.Owner), risk, strings.Join(history, " "))
	}
	return t.Render() + "\n"
}

func renderDashboard(d marketplace.Dashboard) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Dashboard for " + d.Principal))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %d contracts, %s, %s\n", len(d.Contracts), contracts.FormatTonnes(d.TotalTonnes), contracts.FormatUSD(d.TotalUSD)))
	for _, s := range []contracts.ContractStatus{contracts.StatusCreated, contracts.StatusPurchased, contracts.StatusExpired, contracts.StatusSettled} {
		if n := d.ByStatus[string(s)]; n > 0 {
			b.WriteString(fmt.Sprintf("  %s: %d\n", statusBadge(s), n))
		}
	}
	if len(d.Contracts) > 0 {
		b.WriteString(contractTable(d.Contracts))
		b.WriteString("\n")
	}
	if len(d.Credits) > 0 {
		b.WriteString(renderCredits(d.Credits))
	}
	return b.String()
}
