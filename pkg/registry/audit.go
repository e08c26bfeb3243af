package registry

import (
	"fmt"
	"log/slog"
	"os"
)

// StrictAuditEnv enables fatal startup audits when set to "1".
const StrictAuditEnv = "PHASE11_STRICT_AUDIT"

// SelfAudit asserts the registry's post-registration invariants:
//
//	(a) the registry is non-empty iff at least one plugin was supplied,
//	(b) every supplied name is present,
//	(c) every present plugin has a lifecycle state.
//
// In strict mode violations are returned as an error the caller should treat
// as fatal; otherwise they are logged at error level and nil is returned.
func (r *Registry) SelfAudit(supplied []string, strict bool) error {
	var violations []string

	if (r.Len() > 0) != (len(supplied) > 0) {
		violations = append(violations, fmt.Sprintf(
			"registry size %d inconsistent with %d supplied plugins", r.Len(), len(supplied)))
	}

	for _, name := range supplied {
		if _, ok := r.Status(name); !ok {
			violations = append(violations, fmt.Sprintf("supplied plugin %q is not present", name))
		}
	}

	for _, st := range r.ListAll() {
		if st.State == "" {
			violations = append(violations, fmt.Sprintf("plugin %q has no lifecycle state", st.Name))
		}
	}

	if len(violations) == 0 {
		slog.Info("Startup self-audit passed", "plugins", r.Len())
		return nil
	}

	if strict {
		return fmt.Errorf("startup self-audit failed: %v", violations)
	}
	for _, v := range violations {
		slog.Error("Startup self-audit violation", "violation", v)
	}
	return nil
}

// StrictAuditEnabled reports whether the strict-audit env flag is set.
func StrictAuditEnabled() bool {
	return os.Getenv(StrictAuditEnv) == "1"
}
