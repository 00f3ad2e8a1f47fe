package installedapp

import (
	"cmp"
	"slices"
	"time"

	"github.com/Strob0t/AppHub/internal/domain/account"
	"github.com/Strob0t/AppHub/internal/domain/app"
	"github.com/Strob0t/AppHub/internal/domain/tenant"
)

// View is one entry of the installed-app list shown to a user.
// AppOwnerTenantName and PublishPath are only set for the normal role.
type View struct {
	ID                 string      `json:"id"`
	App                app.Summary `json:"app"`
	AppOwnerTenantID   string      `json:"app_owner_tenant_id"`
	AppOwnerTenantName *string     `json:"app_owner_tenant_name,omitempty"`
	IsPinned           bool        `json:"is_pinned"`
	LastUsedAt         *time.Time  `json:"last_used_at"`
	Editable           bool        `json:"editable"`
	Uninstallable      bool        `json:"uninstallable"`
	PublishPath        *string     `json:"publish_path,omitempty"`
}

// PresentInput carries everything Present needs; it is gathered by the caller.
type PresentInput struct {
	Rows       []InstalledApp
	Apps       map[string]app.App
	Role       account.Role
	ViewerRole tenant.MemberRole
	TenantID   string
	OwnerNames map[string]string
}

// Present projects installed rows into sorted views for the given role.
// Rows whose app is missing from in.Apps are skipped, not deleted.
func Present(in PresentInput) []View {
	editable := in.ViewerRole.CanManage()
	views := make([]View, 0, len(in.Rows))
	for i := range in.Rows {
		row := &in.Rows[i]
		a, ok := in.Apps[row.AppID]
		if !ok {
			continue
		}
		v := View{
			ID:               row.ID,
			App:              a.Summarize(),
			AppOwnerTenantID: row.AppOwnerTenantID,
			IsPinned:         row.IsPinned,
			LastUsedAt:       row.LastUsedAt,
			Editable:         editable,
			Uninstallable:    in.TenantID != row.AppOwnerTenantID,
		}
		if in.Role == account.RoleNormal {
			name := in.OwnerNames[row.AppOwnerTenantID]
			path := a.PublishPath
			v.AppOwnerTenantName = &name
			v.PublishPath = &path
		}
		views = append(views, v)
	}
	Sort(views)
	return views
}

// Sort orders views pinned first, then used before never used, then most
// recently used first. Equal keys keep their relative order.
func Sort(views []View) {
	slices.SortStableFunc(views, compareViews)
}

func compareViews(a, b View) int {
	if a.IsPinned != b.IsPinned {
		if a.IsPinned {
			return -1
		}
		return 1
	}
	switch {
	case a.LastUsedAt == nil && b.LastUsedAt == nil:
		return 0
	case a.LastUsedAt == nil:
		return 1
	case b.LastUsedAt == nil:
		return -1
	}
	return b.LastUsedAt.Compare(*a.LastUsedAt)
}

// Section names used by Group.
const (
	SectionPinned  = "pinned"
	SectionRecent  = "recent"
	SectionLibrary = "library"
)

// PathGroup is the apps of one section sharing a publish path.
type PathGroup struct {
	Path string `json:"path"`
	Apps []View `json:"apps"`
}

// Section is a named bucket of the grouped list.
type Section struct {
	Name  string      `json:"name"`
	Paths []PathGroup `json:"paths"`
}

// Group buckets sorted views into pinned, recently used and never used
// sections, each split by publish path. Empty sections are omitted. Paths are
// ordered by their most recent use, with the root path first on ties and then
// by name. Views keep their order within a path.
func Group(views []View) []Section {
	buckets := map[string][]View{}
	for _, v := range views {
		switch {
		case v.IsPinned:
			buckets[SectionPinned] = append(buckets[SectionPinned], v)
		case v.LastUsedAt != nil:
			buckets[SectionRecent] = append(buckets[SectionRecent], v)
		default:
			buckets[SectionLibrary] = append(buckets[SectionLibrary], v)
		}
	}

	var sections []Section
	for _, name := range []string{SectionPinned, SectionRecent, SectionLibrary} {
		if len(buckets[name]) == 0 {
			continue
		}
		sections = append(sections, Section{Name: name, Paths: groupByPath(buckets[name])})
	}
	return sections
}

func groupByPath(views []View) []PathGroup {
	var groups []PathGroup
	pos := map[string]int{}
	latest := map[string]time.Time{}
	for _, v := range views {
		p := viewPath(v)
		i, ok := pos[p]
		if !ok {
			i = len(groups)
			pos[p] = i
			groups = append(groups, PathGroup{Path: p})
		}
		groups[i].Apps = append(groups[i].Apps, v)
		if v.LastUsedAt != nil && v.LastUsedAt.After(latest[p]) {
			latest[p] = *v.LastUsedAt
		}
	}

	slices.SortStableFunc(groups, func(a, b PathGroup) int {
		if c := latest[b.Path].Compare(latest[a.Path]); c != 0 {
			return c
		}
		if a.Path == app.RootPath {
			return -1
		}
		if b.Path == app.RootPath {
			return 1
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return groups
}

func viewPath(v View) string {
	if v.PublishPath == nil || *v.PublishPath == "" {
		return app.RootPath
	}
	return *v.PublishPath
}
