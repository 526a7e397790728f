package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type TierKind string

const (
	KindCredits   TierKind = "credits"
	KindUnlimited TierKind = "unlimited"
)

// Tier is one configured benefit: a paid amount mapped to either a base
// credit count or a number of unlimited-plan days.
type Tier struct {
	Amount      int64
	Kind        TierKind
	BaseCredits int
	Days        int
}

// Catalog is the immutable amount -> benefit table. Built once at startup.
type Catalog struct {
	tiers map[int64]Tier
}

func defaultCreditPacks() map[int64]int {
	return map[int64]int{
		10:  60,
		20:  125,
		50:  330,
		100: 700,
		200: 1500,
	}
}

func defaultUnlimitedPacks() map[int64]int {
	return map[int64]int{
		60:  7,
		150: 30,
		350: 90,
	}
}

// New builds a catalog from "amount:value" override strings. Empty overrides
// keep the built-in packs. Amounts must be unique across both tables.
func New(creditOverride, unlimitedOverride string) (*Catalog, error) {
	credits := defaultCreditPacks()
	unlimited := defaultUnlimitedPacks()

	if creditOverride != "" {
		parsed, err := parsePacks(creditOverride)
		if err != nil {
			return nil, fmt.Errorf("credit packs: %w", err)
		}
		credits = parsed
	}
	if unlimitedOverride != "" {
		parsed, err := parsePacks(unlimitedOverride)
		if err != nil {
			return nil, fmt.Errorf("unlimited packs: %w", err)
		}
		unlimited = parsed
	}

	tiers := make(map[int64]Tier, len(credits)+len(unlimited))
	for amount, base := range credits {
		tiers[amount] = Tier{Amount: amount, Kind: KindCredits, BaseCredits: base}
	}
	for amount, days := range unlimited {
		if _, dup := tiers[amount]; dup {
			return nil, fmt.Errorf("amount %d configured as both credit and unlimited pack", amount)
		}
		tiers[amount] = Tier{Amount: amount, Kind: KindUnlimited, Days: days}
	}
	return &Catalog{tiers: tiers}, nil
}

// MustDefault returns the built-in catalog; the defaults are static and
// always valid.
func MustDefault() *Catalog {
	c, err := New("", "")
	if err != nil {
		panic(err)
	}
	return c
}

// Resolve maps a paid amount to its tier. ok=false means the amount matches
// no pack and the payment must be rejected, never silently ignored.
func (c *Catalog) Resolve(amount int64) (Tier, bool) {
	t, ok := c.tiers[amount]
	return t, ok
}

// Amounts returns all configured amounts in ascending order.
func (c *Catalog) Amounts() []int64 {
	out := make([]int64, 0, len(c.tiers))
	for amount := range c.tiers {
		out = append(out, amount)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func parsePacks(s string) (map[int64]int, error) {
	out := make(map[int64]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed pack entry %q", part)
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("malformed pack amount %q", k)
		}
		value, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || value <= 0 {
			return nil, fmt.Errorf("malformed pack value %q", v)
		}
		if _, dup := out[amount]; dup {
			return nil, fmt.Errorf("duplicate pack amount %d", amount)
		}
		out[amount] = value
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no pack entries in %q", s)
	}
	return out, nil
}
