package installedapp

import "github.com/Strob0t/AppHub/internal/domain/app"

// Plan is the set of mutations that aligns a tenant's installations with the
// apps its subscriptions currently publish.
type Plan struct {
	// Create holds rows to insert. IDs are assigned by the store.
	Create []InstalledApp
	// Delete holds existing rows that left the desired set and are reclaimable.
	Delete []InstalledApp
	// Keep holds existing rows that survive, whether desired or retained
	// because they were used.
	Keep []InstalledApp
}

// Empty reports whether applying the plan would change nothing.
func (p *Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Delete) == 0
}

// PlanReconcile computes the mutations for tenantID given its current rows
// and the desired published apps. It performs no I/O and does not modify its
// inputs. Output order follows input order.
func PlanReconcile(tenantID string, installed []InstalledApp, desired []app.App) Plan {
	index := make(map[string]struct{}, len(installed))
	for i := range installed {
		index[installed[i].AppID] = struct{}{}
	}

	want := make(map[string]struct{}, len(desired))
	var plan Plan
	for i := range desired {
		a := &desired[i]
		if !a.Published() {
			continue
		}
		if _, dup := want[a.ID]; dup {
			continue
		}
		want[a.ID] = struct{}{}
		if _, ok := index[a.ID]; !ok {
			plan.Create = append(plan.Create, NewAutoInstalled(tenantID, a))
		}
	}

	for i := range installed {
		row := installed[i]
		if _, ok := want[row.AppID]; !ok && row.Reclaimable() {
			plan.Delete = append(plan.Delete, row)
			continue
		}
		plan.Keep = append(plan.Keep, row)
	}

	return plan
}
