package contracts

import "carbonlock/marketplace-portal/pkg/workflows"

// lifecycle mirrors the transitions the remote service accepts. It only drives
// which actions the UI offers; the remote service remains the authority.
var lifecycle = workflows.NewStateMachine(map[ContractStatus][]ContractStatus{
	StatusCreated:   {StatusPurchased, StatusExpired},
	StatusPurchased: {StatusSettled, StatusExpired},
	StatusExpired:   {},
	StatusSettled:   {},
})

// CanBuy reports whether a contract in status s can be purchased.
func CanBuy(s ContractStatus) bool {
	return lifecycle.CanTransition(s, StatusPurchased)
}

// NextStatuses lists the statuses a contract may move to from s.
func NextStatuses(s ContractStatus) []ContractStatus {
	return lifecycle.GetAllowedTransitions(s)
}
