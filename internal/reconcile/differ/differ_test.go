package differ_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/differ"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/op"
	rt "github.com/enthus-appdev/n8nctl/internal/reconcile/remotetest"
)

func kinds(d *differ.Delta) []string {
	out := make([]string, 0, len(d.Operations))
	for _, o := range d.Operations {
		out = append(out, o.String())
	}
	return out
}

func TestDiff_IdenticalIsEmpty(t *testing.T) {
	desired := rt.Collection(rt.Workflow("A", true, "T1"), rt.Tag("T1"), rt.Credential("c", "t"))
	current := rt.Collection(rt.Workflow("A", true, "T1"), rt.Tag("T1"), rt.Credential("c", "t"))

	d := differ.Diff(desired, current, differ.Options{})
	assert.True(t, d.Empty())
	assert.Empty(t, d.Preserved)
}

func TestDiff_CreateAndActivate(t *testing.T) {
	desired := rt.Collection(rt.Workflow("A", true), rt.Workflow("B", false))
	d := differ.Diff(desired, rt.Collection(), differ.Options{})

	assert.Equal(t, []string{"create workflow/A", "create workflow/B", "activate workflow/A"}, kinds(d))
}

func TestDiff_ActiveFlagOnly(t *testing.T) {
	desired := rt.Collection(rt.Workflow("A", true))
	current := rt.Collection(rt.Workflow("A", false))

	d := differ.Diff(desired, current, differ.Options{})
	assert.Equal(t, []string{"activate workflow/A"}, kinds(d))

	d = differ.Diff(current, desired, differ.Options{})
	assert.Equal(t, []string{"deactivate workflow/A"}, kinds(d))
}

func TestDiff_ContentAndActiveChange(t *testing.T) {
	desired := rt.Collection(rt.Workflow("A", false, "x"))
	current := rt.Collection(rt.Workflow("A", true))

	d := differ.Diff(desired, current, differ.Options{})
	assert.Equal(t, []string{"update workflow/A", "deactivate workflow/A"}, kinds(d))
	assert.NotNil(t, d.Operations[0].Current)
	assert.NotNil(t, d.Operations[0].Desired)
}

func TestDiff_CredentialTypeChange(t *testing.T) {
	d := differ.Diff(
		rt.Collection(rt.Credential("c", "oAuth2Api")),
		rt.Collection(rt.Credential("c", "httpBasicAuth")),
		differ.Options{},
	)
	assert.Equal(t, []string{"update credential/c"}, kinds(d))
}

func TestDiff_DeleteOrPreserve(t *testing.T) {
	current := rt.Collection(rt.Workflow("A", false, "T1"), rt.Tag("T1"))

	d := differ.Diff(rt.Collection(), current, differ.Options{})
	assert.Equal(t, []string{"delete tag/T1", "delete workflow/A"}, kinds(d))

	d = differ.Diff(rt.Collection(), current, differ.Options{PreserveUntracked: true})
	assert.True(t, d.Empty())
	assert.Equal(t, []entity.Ref{entity.TagRef("T1"), entity.WorkflowRef("A")}, d.Preserved)
}

// An identity present on exactly one side yields exactly one Create or Delete
// (or a preserved entry), never both.
func TestDiff_OneSidedIdentitiesAreExclusive(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 100; run++ {
		preserve := rng.Intn(2) == 0
		var desired, current []entity.Entity
		for i := 0; i < 8; i++ {
			name := fmt.Sprintf("w%d", i)
			switch rng.Intn(3) {
			case 0:
				desired = append(desired, rt.Workflow(name, rng.Intn(2) == 0))
			case 1:
				current = append(current, rt.Workflow(name, rng.Intn(2) == 0))
			default:
				desired = append(desired, rt.Workflow(name, rng.Intn(2) == 0))
				current = append(current, rt.Workflow(name, rng.Intn(2) == 0))
			}
		}
		dc, cc := rt.Collection(desired...), rt.Collection(current...)
		d := differ.Diff(dc, cc, differ.Options{PreserveUntracked: preserve})

		counts := make(map[entity.Ref]int)
		for _, o := range d.Operations {
			if o.Kind == op.Create || o.Kind == op.Delete {
				counts[o.Ref]++
			}
		}
		for _, ref := range d.Preserved {
			counts[ref]++
		}

		for _, ref := range dc.Refs() {
			if !cc.Has(ref) {
				assert.Equal(t, 1, counts[ref], "run %d: %s", run, ref)
			}
		}
		for _, ref := range cc.Refs() {
			if !dc.Has(ref) {
				assert.Equal(t, 1, counts[ref], "run %d: %s", run, ref)
			} else {
				assert.Zero(t, counts[ref], "run %d: %s", run, ref)
			}
		}
	}
}
