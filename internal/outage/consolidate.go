package outage

import (
	"strings"

	"ceb-outage-alerts/internal/portal"
)

// idSeparator joins the identity triple into one string. Portal timestamps
// and descriptions do not contain pipes in practice.
const idSeparator = "|"

// Account is one electricity account reporting an outage.
type Account struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

// Consolidated is one logical outage merged across accounts. Field values
// come verbatim from the first raw record seen with this identity.
type Consolidated struct {
	StartTime            string    `json:"startTime"`
	EndTime              string    `json:"endTime"`
	Description          string    `json:"description"`
	InterruptionTypeName string    `json:"interruptionTypeName"`
	Status               string    `json:"status,omitempty"`
	Accounts             []Account `json:"accounts"`
}

// ID returns the identity key of a consolidated outage.
func (c Consolidated) ID() string {
	return Key(c.StartTime, c.EndTime, c.Description)
}

// Key builds the identity key for an outage: the exact string triple with
// no normalisation or fuzzy matching.
func Key(startTime, endTime, description string) string {
	return strings.Join([]string{startTime, endTime, description}, idSeparator)
}

// Consolidator merges raw per-account outage records into unique outages,
// preserving first-seen order.
type Consolidator struct {
	order []string
	byKey map[string]*Consolidated
}

// NewConsolidator returns an empty consolidator for one run.
func NewConsolidator() *Consolidator {
	return &Consolidator{byKey: make(map[string]*Consolidated)}
}

// Add records one raw outage reported by one account. The first sighting of
// an identity key copies the raw fields; later sightings only append the
// account. Accounts are appended unconditionally, so an account listed
// twice in the configuration yields two entries.
func (c *Consolidator) Add(acct Account, raw portal.RawOutage) {
	key := Key(raw.StartTime, raw.EndTime, raw.Description)

	existing, ok := c.byKey[key]
	if !ok {
		c.order = append(c.order, key)
		c.byKey[key] = &Consolidated{
			StartTime:            raw.StartTime,
			EndTime:              raw.EndTime,
			Description:          raw.Description,
			InterruptionTypeName: raw.InterruptionTypeName,
			Status:               raw.Status,
			Accounts:             []Account{acct},
		}
		return
	}

	existing.Accounts = append(existing.Accounts, acct)
}

// Outages returns the consolidated list in first-seen order.
func (c *Consolidator) Outages() []Consolidated {
	result := make([]Consolidated, 0, len(c.order))
	for _, key := range c.order {
		result = append(result, *c.byKey[key])
	}
	return result
}
