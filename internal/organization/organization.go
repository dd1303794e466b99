// Package organization implements the first-run bootstrap: deriving the
// immutable organization digest from the canonical specification text,
// persisting it to ORGANIZATION.sha256, and appending the Genesis event
// that seeds a fresh instance's identity block (spec §3, §6: "the
// canonical specification text whose digest feeds the organization
// hash"). Grounded on internal/atomicfile for the sidecar digest file
// and internal/eventlog's own zero-padded genesis-file convention.
package organization

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"entity/internal/digest"
	"entity/internal/domain"
	"entity/internal/statestore"
)

const specRelPath = "spec/SPECIFICATION.md"
const hashFileName = "ORGANIZATION.sha256"

//go:embed specification.md
var embeddedSpec embed.FS

// CanonicalSpecification returns the organization's identity text baked
// into the binary, used to bootstrap a fresh home directory. An
// operator who wants a different identity anchor can still pass their
// own text to Bootstrap directly.
func CanonicalSpecification() string {
	b, err := embeddedSpec.ReadFile("specification.md")
	if err != nil {
		panic("organization: embedded specification.md missing: " + err.Error())
	}
	return string(b)
}

// Bootstrap seeds a fresh instance: if state/current.json already holds a
// genesis, it is a no-op and the existing hash is returned. Otherwise it
// computes the organization hash from specText, writes spec/SPECIFICATION.md
// and ORGANIZATION.sha256, and appends the Genesis event.
func Bootstrap(dir string, store *statestore.Store, specText, instantiatedBy string, now func() time.Time) (domain.Digest, error) {
	if now == nil {
		now = time.Now
	}
	if st, ok := store.Read(); ok && !st.Created.IsZero() {
		return st.OrganizationHash, nil
	}

	orgHash := digest.Digest([]byte(strings.TrimSpace(specText)))

	specPath := filepath.Join(dir, specRelPath)
	if err := os.MkdirAll(filepath.Dir(specPath), 0o750); err != nil {
		return domain.Digest{}, domain.NewError(domain.KindStateIo, "create spec directory", err)
	}
	if err := os.WriteFile(specPath, []byte(specText), 0o640); err != nil {
		return domain.Digest{}, domain.NewError(domain.KindStateIo, "write specification text", err)
	}

	hashPath := filepath.Join(dir, hashFileName)
	if err := os.WriteFile(hashPath, []byte(orgHash.String()+"\n"), 0o640); err != nil {
		return domain.Digest{}, domain.NewError(domain.KindStateIo, "write organization hash", err)
	}

	data := domain.Record{
		"organization_hash": orgHash.String(),
		"instantiated_by":   instantiatedBy,
		"specification":     specText,
	}
	if _, _, err := store.AppendAtomic(domain.EventGenesis, data, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
		st.OrganizationHash = orgHash
		st.Created = ev.Timestamp
		st.InstantiatedBy = instantiatedBy
		st.Specification = specText
		st.Energy = domain.Energy{Current: 1.0, Min: 0.01, Threshold: 0.2}
		st.Lyapunov = domain.Lyapunov{V: 0, VPrevious: 0}
		st.Integrity.Status = domain.StatusNominal
		return st
	}); err != nil {
		return domain.Digest{}, err
	}
	return orgHash, nil
}

// VerifyOnDisk re-derives the organization hash from spec/SPECIFICATION.md
// and compares it against ORGANIZATION.sha256, returning an error
// describing any mismatch (used by `entity verify` as an extra INV-001
// cross-check beyond the in-state comparison).
func VerifyOnDisk(dir string) error {
	specBytes, err := os.ReadFile(filepath.Join(dir, specRelPath))
	if err != nil {
		return domain.NewError(domain.KindStateIo, "read specification text", err)
	}
	hashBytes, err := os.ReadFile(filepath.Join(dir, hashFileName))
	if err != nil {
		return domain.NewError(domain.KindStateIo, "read organization hash", err)
	}
	want := strings.TrimSpace(string(hashBytes))
	got := digest.Digest([]byte(strings.TrimSpace(string(specBytes)))).String()
	if want != got {
		return fmt.Errorf("organization hash mismatch: recorded %s, recomputed %s", want, got)
	}
	return nil
}
