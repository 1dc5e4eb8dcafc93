package transform

// StatusVocabulary maps folded synonyms to canonical status codes.
type StatusVocabulary struct {
	Initial  string
	Allowed  []string
	Synonyms map[string]string
}

// Normalize returns the canonical code and whether the input was recognized.
// Absent input yields the initial status.
func (v StatusVocabulary) Normalize(s string) (string, bool) {
	folded := Fold(s)
	if folded == "" {
		return v.Initial, true
	}
	if code, ok := v.Synonyms[folded]; ok {
		return code, true
	}
	for _, allowed := range v.Allowed {
		if folded == Fold(allowed) {
			return allowed, true
		}
	}
	return folded, false
}

// Contains reports whether code is a canonical status.
func (v StatusVocabulary) Contains(code string) bool {
	for _, allowed := range v.Allowed {
		if allowed == code {
			return true
		}
	}
	return false
}

var ProjectStatuses = StatusVocabulary{
	Initial: "planned",
	Allowed: []string{"planned", "in_progress", "completed", "suspended", "cancelled"},
	Synonyms: map[string]string{
		"planned":       "planned",
		"planning":      "planned",
		"pending":       "planned",
		"not started":   "planned",
		"planificado":   "planned",
		"planificacion": "planned",
		"pendiente":     "planned",
		"en diseno":     "planned",
		"in progress":   "in_progress",
		"active":        "in_progress",
		"ongoing":       "in_progress",
		"started":       "in_progress",
		"en curso":      "in_progress",
		"en ejecucion":  "in_progress",
		"ejecucion":     "in_progress",
		"en proceso":    "in_progress",
		"activo":        "in_progress",
		"completed":     "completed",
		"complete":      "completed",
		"finished":      "completed",
		"done":          "completed",
		"closed":        "completed",
		"terminado":     "completed",
		"finalizado":    "completed",
		"completado":    "completed",
		"ejecutado":     "completed",
		"suspended":     "suspended",
		"paused":        "suspended",
		"on hold":       "suspended",
		"suspendido":    "suspended",
		"detenido":      "suspended",
		"paralizado":    "suspended",
		"cancelled":     "cancelled",
		"canceled":      "cancelled",
		"cancelado":     "cancelled",
		"anulado":       "cancelled",
		"desistido":     "cancelled",
	},
}

var ContractStatuses = StatusVocabulary{
	Initial: "pending",
	Allowed: []string{"pending", "active", "completed", "terminated", "cancelled"},
	Synonyms: map[string]string{
		"pending":      "pending",
		"draft":        "pending",
		"pendiente":    "pending",
		"borrador":     "pending",
		"en tramite":   "pending",
		"active":       "active",
		"in progress":  "active",
		"vigente":      "active",
		"activo":       "active",
		"en curso":     "active",
		"en ejecucion": "active",
		"completed":    "completed",
		"finished":     "completed",
		"expired":      "completed",
		"terminado":    "completed",
		"finalizado":   "completed",
		"vencido":      "completed",
		"terminated":   "terminated",
		"rescinded":    "terminated",
		"rescindido":   "terminated",
		"resciliado":   "terminated",
		"cancelled":    "cancelled",
		"canceled":     "cancelled",
		"cancelado":    "cancelled",
		"anulado":      "cancelled",
	},
}
