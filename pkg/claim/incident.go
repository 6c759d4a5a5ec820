package claim

// Incident-type keys produced by triage. Each key maps to exactly one
// specialist agent in the registry.
const (
	IncidentAccidentalAndGlass = "accidental_and_glass_damage"
	IncidentFire               = "fire"
	IncidentTheft              = "theft"
	IncidentAncillaryProperty  = "ancillary_property"
	IncidentThirdPartyInjury   = "third_party_injury"
	IncidentThirdPartyProperty = "third_party_property"
	IncidentSpecialLiability   = "special_liability"
	IncidentLegalAndStatutory  = "legal_and_statutory"
	IncidentPersonalInjury     = "personal_injury"
	IncidentPersonalConvenience = "personal_convenience"
	IncidentPersonalProperty   = "personal_property"
	IncidentTerritorialUsage   = "territorial_usage"
	IncidentGeneralExceptions  = "general_exceptions"
	IncidentVehicleSecurity    = "vehicle_security"
	IncidentAdministrative     = "administrative"
)

// IncidentTypes returns every recognized incident-type key.
func IncidentTypes() []string {
	return []string{
		IncidentAccidentalAndGlass,
		IncidentFire,
		IncidentTheft,
		IncidentAncillaryProperty,
		IncidentThirdPartyInjury,
		IncidentThirdPartyProperty,
		IncidentSpecialLiability,
		IncidentLegalAndStatutory,
		IncidentPersonalInjury,
		IncidentPersonalConvenience,
		IncidentPersonalProperty,
		IncidentTerritorialUsage,
		IncidentGeneralExceptions,
		IncidentVehicleSecurity,
		IncidentAdministrative,
	}
}

// KnownIncidentType reports whether key is one of the recognized categories.
func KnownIncidentType(key string) bool {
	for _, k := range IncidentTypes() {
		if k == key {
			return true
		}
	}
	return false
}
