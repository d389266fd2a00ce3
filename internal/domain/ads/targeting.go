package ads

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/shopads/ads-api/internal/domain/customer"
	"github.com/shopads/ads-api/internal/pkg/validator"
)

// CartItem is one line of the shopper's cart
type CartItem struct {
	ProductID string  `json:"product_id"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// SelectionContext carries page and cart signals for a selection request
type SelectionContext struct {
	CurrentPath       string
	CartItems         []CartItem
	CurrentProductID  string
	CurrentCategoryID string
	CurrentBrandID    string
	SearchQuery       string
}

func (c *SelectionContext) cartTotal() float64 {
	var total float64
	for _, item := range c.CartItems {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// audience describes who is asking. A nil profile is an anonymous visitor.
type audience struct {
	userID  string
	profile *customer.Audience
	now     time.Time
	window  time.Duration
}

// matchesTarget evaluates the campaign's audience rule
func matchesTarget(ad *Advertisement, who audience) bool {
	p := who.profile
	switch ad.TargetType {
	case TargetAllUsers:
		return true
	case TargetNewUsers:
		return p == nil || p.IsNew(who.now, who.window)
	case TargetReturningUsers:
		return p != nil && p.IsReturning(who.now, who.window)
	case TargetInterestBased:
		return p != nil && ad.TargetConfig != nil && intersects(p.Interests, ad.TargetConfig.Interests)
	case TargetSpecificUsers:
		return p != nil && ad.TargetConfig != nil && contains(ad.TargetConfig.UserIDs, who.userID)
	case TargetLocationBased:
		// Customers carry no location yet, so location campaigns are never selected
		return false
	}
	return false
}

// matchesContext applies display conditions for the signals the request carries
func matchesContext(dc *DisplayConditions, sc *SelectionContext) bool {
	if sc == nil || dc == nil {
		return true
	}

	if len(dc.Paths) > 0 && sc.CurrentPath != "" && !contains(dc.Paths, sc.CurrentPath) {
		return false
	}

	if len(sc.CartItems) > 0 {
		if dc.CartContains != nil && len(dc.CartContains.ProductIDs) > 0 {
			ids := make([]string, 0, len(sc.CartItems))
			for _, item := range sc.CartItems {
				ids = append(ids, item.ProductID)
			}
			if !intersects(ids, dc.CartContains.ProductIDs) {
				return false
			}
		}
		if dc.CartValue != nil {
			total := sc.cartTotal()
			if dc.CartValue.Min != nil && total < *dc.CartValue.Min {
				return false
			}
			if dc.CartValue.Max != nil && total > *dc.CartValue.Max {
				return false
			}
		}
	}

	return true
}

// matchesSchedule checks the weekday list and the inclusive HH:MM window.
// The window applies only with both bounds set; with neither set any time
// matches, and a half-open window never matches.
func matchesSchedule(sc *ScheduleConfig, now time.Time) bool {
	if sc == nil {
		return true
	}

	if len(sc.Days) > 0 && !contains(sc.Days, strconv.Itoa(int(now.Weekday()))) {
		return false
	}

	start, hasStart := validator.ParseClock(sc.TimeStart)
	end, hasEnd := validator.ParseClock(sc.TimeEnd)
	minute := now.Hour()*60 + now.Minute()

	switch {
	case hasStart && hasEnd:
		return start <= minute && minute <= end
	case !hasStart && !hasEnd:
		return true
	}
	return false
}

// resolveABTests keeps exactly one member of every A/B group. Known users
// always land in the same bucket; anonymous visitors get a random one.
func resolveABTests(ads []Advertisement, userID string, intn func(int) int) []Advertisement {
	out := make([]Advertisement, 0, len(ads))
	groups := make(map[string][]int)
	var order []string

	for i := range ads {
		ad := &ads[i]
		if !ad.IsAbTest || !ad.AbTestGroup.Valid || ad.AbTestGroup.String == "" {
			out = append(out, *ad)
			continue
		}
		group := ad.AbTestGroup.String
		if _, ok := groups[group]; !ok {
			order = append(order, group)
		}
		groups[group] = append(groups[group], i)
	}

	for _, group := range order {
		members := groups[group]
		var idx int
		if userID != "" {
			idx = int(abHash(userID+"-"+group) % int64(len(members)))
		} else {
			idx = intn(len(members))
		}
		out = append(out, ads[members[idx]])
	}

	return out
}

// abHash is the 31-multiplier rolling hash over UTF-16 code units, wrapped
// to 32 bits, returned as its absolute value.
func abHash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// applyContextualScoring raises priority by page relevance
func applyContextualScoring(ads []Advertisement, sc *SelectionContext) {
	query := strings.ToLower(sc.SearchQuery)
	for i := range ads {
		ad := &ads[i]
		score := 0
		if sc.CurrentProductID != "" && ad.ProductID.Valid && ad.ProductID.String == sc.CurrentProductID {
			score += 10
		}
		if sc.CurrentCategoryID != "" && ad.CategoryID.Valid && ad.CategoryID.String == sc.CurrentCategoryID {
			score += 5
		}
		if sc.CurrentBrandID != "" && ad.BrandID.Valid && ad.BrandID.String == sc.CurrentBrandID {
			score += 5
		}
		if query != "" && strings.Contains(strings.ToLower(ad.Title), query) {
			score += 3
		}

		base := ad.Priority
		if base == 0 {
			base = 1
		}
		ad.Priority = base + score
	}
}

func sortByPriority(ads []Advertisement) {
	sort.SliceStable(ads, func(i, j int) bool { return ads[i].Priority > ads[j].Priority })
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
