package orders

// AutoApproved implements the approval gate: an order skips human sign-off
// only when its amount is strictly below the user's threshold. An amount
// exactly equal to the threshold still requires approval.
func AutoApproved(amount, threshold float64) bool {
	return amount < threshold
}
