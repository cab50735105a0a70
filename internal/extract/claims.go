package extract

import (
	"go.uber.org/zap"

	"github.com/ppiankov/invariant/internal/compile"
	"github.com/ppiankov/invariant/internal/model"
)

// RootKey wraps the fact root on the second resolution attempt
const RootKey = "facts"

// FactExtractor resolves claims against a fact document
type FactExtractor struct {
	logger *zap.Logger
}

// NewFactExtractor creates a new fact extractor
func NewFactExtractor(logger *zap.Logger) *FactExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FactExtractor{logger: logger}
}

// Extract resolves every claim against root and returns the resulting facts.
// Claims that resolve to nothing, or only to null, contribute no facts.
func (e *FactExtractor) Extract(claims []compile.Claim, root model.Value) *model.FactSet {
	facts := model.NewFactSet()
	for _, claim := range claims {
		values, wrapped := Resolve(claim, root)
		e.collect(facts, claim, values)

		e.logger.Debug("resolved claim",
			zap.String("claim", claim.Name),
			zap.String("selector", claim.Selector.String()),
			zap.Int("matches", len(values)),
			zap.Bool("wrapped", wrapped))
	}
	return facts
}

// Resolve applies the claim's selector to root. When nothing matches, the
// selector is retried against root wrapped under "facts" so that selectors
// written against the envelope shape still resolve.
func Resolve(claim compile.Claim, root model.Value) (values []model.Value, wrapped bool) {
	values = claim.Selector.Select(root)
	if len(values) > 0 {
		return values, false
	}
	values = claim.Selector.Select(model.Mapping(model.Pair(RootKey, root)))
	return values, len(values) > 0
}

// collector accumulates the facts of one claim, including the lengths of
// every container it reaches
type collector struct {
	facts   *model.FactSet
	lengths map[string]int
	order   []string
}

func (e *FactExtractor) collect(facts *model.FactSet, claim compile.Claim, values []model.Value) {
	c := &collector{facts: facts, lengths: make(map[string]int)}

	resolved, scalars := 0, 0
	sawContainer := false
	for _, v := range values {
		switch {
		case v.IsNull():
			continue
		case v.IsContainer():
			sawContainer = true
			c.count(claim.Name, v.Len())
			c.container(claim.Name, v)
		default:
			scalars++
			facts.Add(claim.Name, v)
		}
		resolved++
	}

	if resolved > 0 && (sawContainer || claim.Selector.HasWildcard()) {
		c.count(claim.Name, scalars)
	}
	for _, name := range c.order {
		facts.SetLength(name, c.lengths[name])
	}
}

func (c *collector) count(claim string, n int) {
	if _, ok := c.lengths[claim]; !ok {
		c.order = append(c.order, claim)
	}
	c.lengths[claim] += n
}

// container records the facts held by a sequence or mapping under claim
func (c *collector) container(claim string, v model.Value) {
	if v.Kind() == model.KindSequence {
		for _, item := range v.Elements() {
			c.element(claim, item)
		}
		return
	}

	// The mapping itself is a value of the claim; its fields are nested claims
	c.facts.Add(claim, v)
	for _, entry := range v.Entries() {
		c.nested(claim+"."+entry.Key, entry.Value)
	}
}

// element records one sequence element; nested sequences are flattened
func (c *collector) element(claim string, item model.Value) {
	switch item.Kind() {
	case model.KindNull:
	case model.KindSequence:
		for _, inner := range item.Elements() {
			c.element(claim, inner)
		}
	case model.KindMapping:
		c.container(claim, item)
	default:
		c.facts.Add(claim, item)
	}
}

func (c *collector) nested(claim string, v model.Value) {
	switch {
	case v.IsNull():
	case v.IsContainer():
		c.count(claim, v.Len())
		c.container(claim, v)
	default:
		c.facts.Add(claim, v)
	}
}
