package models

// DecisionKind is the verdict for one attributed event.
type DecisionKind uint8

const (
	DecisionNoOp DecisionKind = iota
	DecisionExempt
	DecisionWarning
	DecisionExceeded
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionNoOp:
		return "noop"
	case DecisionExempt:
		return "exempt"
	case DecisionWarning:
		return "warning"
	case DecisionExceeded:
		return "exceeded"
	default:
		return "unknown"
	}
}

// ProtectionReason says why an actor is exempt from enforcement.
type ProtectionReason string

const (
	ProtectedOwner           ProtectionReason = "Server Owner"
	ProtectedSelf            ProtectionReason = "Bot"
	ProtectedExtraOwner      ProtectionReason = "Extra Owner"
	ProtectedWhitelistedUser ProtectionReason = "Whitelisted User"
	ProtectedWhitelistedRole ProtectionReason = "Whitelisted Role"
)

// Decision is the evaluator output. Count and Limit are set for Warning and
// Exceeded; Punishment only for Exceeded; Exemption only for Exempt.
type Decision struct {
	Kind       DecisionKind
	Count      uint
	Limit      uint
	Punishment PunishmentKind
	Exemption  ProtectionReason
}
