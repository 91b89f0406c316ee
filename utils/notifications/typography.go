package notifications

var (
	paymentConfirmedMsg = "Your %s payment of %s %s was confirmed"
	paymentRefundedMsg  = "Your %s payment of %s %s was refunded"
	fundsReleasedMsg    = "%s held in escrow has been released to you"
	fundsRefundedMsg    = "%s held in escrow has been refunded"
)

var (
	paymentConfirmedTitle = "Payment Confirmed"
	paymentRefundedTitle  = "Payment Refunded"
	fundsReleasedTitle    = "Escrow Funds Released"
	fundsRefundedTitle    = "Escrow Funds Refunded"
)

var purposeLabels = map[string]string{
	"bid_fee":        "bid fee",
	"listing":        "listing fee",
	"bonus_funding":  "bonus pool",
	"subscription":   "subscription",
	"withdrawal_fee": "withdrawal fee",
}

func purposeLabel(p string) string {
	if l, ok := purposeLabels[p]; ok {
		return l
	}
	return p
}
