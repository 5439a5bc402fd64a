package portal

import "github.com/prohmpiriya/safeguard-membership/internal/domain"

// TierInfo describes one membership tier on the comparison page
type TierInfo struct {
	Tier                string   `json:"tier"`
	Name                string   `json:"name"`
	AnnualPrice         float64  `json:"annual_price"`
	Currency            string   `json:"currency"`
	RequiresPayment     bool     `json:"requires_payment"`
	RequiresApplication bool     `json:"requires_application"`
	Benefits            []string `json:"benefits"`
}

var tierCatalogue = []TierInfo{
	{
		Tier:     domain.TierAssociate,
		Name:     "Associate Membership",
		Currency: "GBP",
		Benefits: []string{
			"Monthly safeguarding briefing",
			"Access to the news hub",
			"Member events at member rates",
		},
	},
	{
		Tier:            domain.TierFull,
		Name:            "Full Membership",
		AnnualPrice:     95,
		Currency:        "GBP",
		RequiresPayment: true,
		Benefits: []string{
			"Everything in Associate",
			"Digital membership credential",
			"CPD hours tracking",
			"Discounted training courses",
		},
	},
	{
		Tier:                domain.TierFellow,
		Name:                "Fellowship",
		AnnualPrice:         150,
		Currency:            "GBP",
		RequiresPayment:     true,
		RequiresApplication: true,
		Benefits: []string{
			"Everything in Full",
			"Post-nominal letters",
			"Invitation to the fellows' forum",
		},
	},
}

// Tiers returns the membership comparison catalogue, cheapest first
func Tiers() []TierInfo {
	out := make([]TierInfo, len(tierCatalogue))
	for i, t := range tierCatalogue {
		t.Benefits = append([]string(nil), t.Benefits...)
		out[i] = t
	}
	return out
}
