package auth

import "fmt"

// Builtin permission vocabulary. Mirrors the resources the surrounding
// church-management CRUD layer exposes; the catalog is seeded from this
// table at startup and is not user-editable through the authorization path.
var builtinResources = []struct {
	Resource string
	Category string
	MinLevel int
}{
	{"member", "members", 1},
	{"attendance", "attendance", 1},
	{"group", "groups", 2},
	{"prayer", "prayers", 1},
	{"offering", "offerings", 2},
	{"announcement", "announcements", 2},
	{"survey", "surveys", 1},
	{"report", "reports", 2},
	{"education", "education", 1},
	{"worship", "worship", 1},
	{"carelog", "care", 2},
	{"bulletin", "bulletins", 1},
	{"visitation", "care", 2},
}

var builtinActions = []string{ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionManage}

var builtinScopes = []string{ScopeOwn, ScopeOwnGroup, ScopeAll}

var scopeLabels = map[string]string{
	ScopeOwn:      "own records",
	ScopeOwnGroup: "assigned groups",
	ScopeAll:      "whole church",
}

// BuiltinPermissions expands the vocabulary into concrete catalog entries,
// one per resource/action/scope combination.
func BuiltinPermissions() []PermissionMeta {
	var out []PermissionMeta
	for _, res := range builtinResources {
		for _, action := range builtinActions {
			for _, scope := range builtinScopes {
				out = append(out, PermissionMeta{
					Code:     fmt.Sprintf("%s.%s.%s", res.Resource, action, scope),
					Label:    fmt.Sprintf("%s %s (%s)", action, res.Resource, scopeLabels[scope]),
					Category: res.Category,
					MinLevel: res.MinLevel,
				})
			}
		}
	}
	return out
}

// RoleTemplate is a seedable per-church volunteer role definition.
type RoleTemplate struct {
	Name               string
	Code               string
	Category           string
	Description        string
	RequiredLevel      int
	RequiresTraining   bool
	DefaultPermissions []string
}

// DefaultVolunteerRoles are the stock ministry roles a new church starts
// with. Churches customize or deactivate them afterwards.
var DefaultVolunteerRoles = []RoleTemplate{
	{
		Name:             "Children's Teacher",
		Code:             "children_teacher",
		Category:         "education",
		Description:      "Teaches an assigned children's class.",
		RequiredLevel:    2,
		RequiresTraining: true,
		DefaultPermissions: []string{
			"member.view.own_group",
			"attendance.create.own_group",
			"attendance.view.own_group",
			"education.manage.own_group",
		},
	},
	{
		Name:             "Youth Leader",
		Code:             "youth_leader",
		Category:         "education",
		Description:      "Leads an assigned youth group.",
		RequiredLevel:    2,
		RequiresTraining: true,
		DefaultPermissions: []string{
			"member.view.own_group",
			"attendance.create.own_group",
			"attendance.view.own_group",
			"prayer.view.own_group",
		},
	},
	{
		Name:          "Worship Team Member",
		Code:          "worship_team",
		Category:      "worship",
		Description:   "Serves on the worship schedule.",
		RequiredLevel: 1,
		DefaultPermissions: []string{
			"worship.view.all",
			"worship.update.own",
		},
	},
	{
		Name:          "Prayer Coordinator",
		Code:          "prayer_coordinator",
		Category:      "prayers",
		Description:   "Curates prayer requests for assigned groups.",
		RequiredLevel: 2,
		DefaultPermissions: []string{
			"prayer.view.own_group",
			"prayer.update.own_group",
		},
	},
	{
		Name:             "Offering Counter",
		Code:             "offering_counter",
		Category:         "offerings",
		Description:      "Records and verifies weekly offerings.",
		RequiredLevel:    3,
		RequiresTraining: true,
		DefaultPermissions: []string{
			"offering.view.all",
			"offering.create.all",
		},
	},
	{
		Name:          "Care Visitor",
		Code:          "care_visitor",
		Category:      "care",
		Description:   "Visits members of assigned groups and logs care notes.",
		RequiredLevel: 2,
		DefaultPermissions: []string{
			"member.view.own_group",
			"carelog.create.own_group",
			"carelog.view.own",
			"visitation.create.own_group",
		},
	},
}

// SeedCatalog registers every builtin permission into the catalog.
func SeedCatalog(c *Catalog) error {
	for _, meta := range BuiltinPermissions() {
		if err := c.Register(meta.Code, meta.Label, meta.Category, meta.MinLevel); err != nil {
			return err
		}
	}
	return nil
}
