package core

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// The rules re-check at commit time what the service operations check up
// front, so writes issued directly against a store are held to the same
// invariants.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(ImmutableFieldsRule())
	engine.Register(PropertyFieldsRule())
	engine.Register(RequestTransitionRule())
	engine.Register(RequestListingRule())
	engine.Register(ActiveRequestUniqueRule())
	engine.Register(ShortlistUniqueRule())
	return engine
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func block(rule string, kind ErrorKind, entity EntityType, id, msg string) Violation {
	return Violation{Rule: rule, Severity: SeverityBlock, Kind: kind, Message: msg, Entity: entity, EntityID: id}
}
