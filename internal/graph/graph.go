// Package graph maintains an in-memory view of the membership graph: which
// users belong to which groups, directly or through nested groups, and which
// permission grants they inherit along the way.
//
// The graph is rebuilt from the database rather than mutated in place. Every
// write path bumps the "updates" counter; RefreshFromDB compares that counter
// against the checkpoint of the last rebuild and skips the rebuild when
// nothing changed. Readers hold an RLock over a fully built state, so they
// never observe a half-applied update.
package graph

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/telemetry"
)

// MembershipInfo describes one resolved membership: the role the member holds,
// the chain of group names the membership flows through, and its length.
type MembershipInfo struct {
	Role     string   `json:"role"`
	Path     []string `json:"path"`
	Distance int      `json:"distance"`
}

// Grant is a permission grant as seen through the graph
type Grant struct {
	Permission string `json:"permission"`
	Argument   string `json:"argument"`
}

// GroupDetails is the resolved view of a group: all transitive member users
// and subgroups, the groups it is itself a member of, and its direct grants.
type GroupDetails struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Email       *string                   `json:"email,omitempty"`
	Users       map[string]MembershipInfo `json:"users"`
	Subgroups   map[string]MembershipInfo `json:"subgroups"`
	Parents     []string                  `json:"parents"`
	Permissions []Grant                   `json:"permissions"`
}

// UserDetails is the resolved view of a user: all transitive group
// memberships, the permission grants inherited through them, and the user's
// public keys.
type UserDetails struct {
	Username    string                    `json:"username"`
	Email       string                    `json:"email"`
	Groups      map[string]MembershipInfo `json:"groups"`
	Permissions []Grant                   `json:"permissions"`
	PublicKeys  []*models.PublicKey       `json:"public_keys"`
}

// edge is a membership edge indexed for traversal. memberUser / memberGroup
// hold names, not IDs; exactly one is non-empty.
type edge struct {
	memberUser  string
	memberGroup string
	role        string
}

// state is one immutable rebuild of the graph
type state struct {
	checkpoint     int64
	checkpointTime time.Time
	users          map[string]*models.User      // by username
	groups         map[string]*models.Group     // by name
	members        map[string][]edge            // group name -> member edges
	memberOf       map[string][]edgeUp          // member group name -> parent edges
	userMemberOf   map[string][]edgeUp          // username -> parent edges
	grants         map[string][]Grant           // group name -> direct grants
	publicKeys     map[string][]*models.PublicKey // username -> keys
}

type edgeUp struct {
	group string
	role  string
}

// Graph exposes resolved membership lookups backed by a periodically
// refreshed snapshot
type Graph struct {
	mu     sync.RWMutex
	state  *state
	repo   *repositories.GraphRepository
	logger *slog.Logger
}

// New creates an empty graph. Call RefreshFromDB before serving lookups.
func New(repo *repositories.GraphRepository, logger *slog.Logger) *Graph {
	return &Graph{
		state:  newState(),
		repo:   repo,
		logger: logger,
	}
}

// NewFromSnapshot builds a graph directly from a snapshot, bypassing the
// checkpoint comparison. Useful in tests and tools that already hold the data.
func NewFromSnapshot(snap *repositories.GraphSnapshot) *Graph {
	return &Graph{state: buildState(snap)}
}

func newState() *state {
	return &state{
		users:        make(map[string]*models.User),
		groups:       make(map[string]*models.Group),
		members:      make(map[string][]edge),
		memberOf:     make(map[string][]edgeUp),
		userMemberOf: make(map[string][]edgeUp),
		grants:       make(map[string][]Grant),
		publicKeys:   make(map[string][]*models.PublicKey),
	}
}

// RefreshFromDB rebuilds the graph if the updates counter moved since the last
// rebuild. Returns true when a rebuild happened.
func (g *Graph) RefreshFromDB(ctx context.Context) (bool, error) {
	start := time.Now()

	checkpoint, _, err := g.repo.Checkpoint(ctx)
	if err != nil {
		telemetry.GraphRefreshErrorsTotal.Inc()
		return false, err
	}

	g.mu.RLock()
	current := g.state.checkpoint
	initialized := len(g.state.users) > 0 || len(g.state.groups) > 0
	g.mu.RUnlock()

	if initialized && checkpoint == current {
		telemetry.GraphRefreshSkippedTotal.Inc()
		return false, nil
	}

	snap, err := g.repo.LoadSnapshot(ctx)
	if err != nil {
		telemetry.GraphRefreshErrorsTotal.Inc()
		return false, err
	}

	st := buildState(snap)

	g.mu.Lock()
	g.state = st
	g.mu.Unlock()

	telemetry.GraphRefreshDuration.Observe(time.Since(start).Seconds())
	g.logger.Debug("membership graph rebuilt",
		"checkpoint", st.checkpoint,
		"users", len(st.users),
		"groups", len(st.groups),
		"duration_ms", time.Since(start).Milliseconds())

	return true, nil
}

// Checkpoint returns the counter value the current state was built from
func (g *Graph) Checkpoint() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.checkpoint
}

// LoadedAt returns the write time of the checkpoint the current state was
// built from, or the zero time before the first successful load. The
// readiness probe keys off this.
func (g *Graph) LoadedAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.checkpointTime
}

func buildState(snap *repositories.GraphSnapshot) *state {
	st := newState()
	st.checkpoint = snap.Checkpoint
	st.checkpointTime = snap.CheckpointTime

	usersByID := make(map[string]*models.User, len(snap.Users))
	for _, u := range snap.Users {
		st.users[u.Username] = u
		usersByID[u.ID] = u
	}

	groupsByID := make(map[string]*models.Group, len(snap.Groups))
	for _, grp := range snap.Groups {
		st.groups[grp.Name] = grp
		groupsByID[grp.ID] = grp
	}

	for _, e := range snap.Edges {
		parent, ok := groupsByID[e.GroupID]
		if !ok {
			continue
		}
		if e.MemberUserID != nil {
			u, ok := usersByID[*e.MemberUserID]
			if !ok {
				continue
			}
			st.members[parent.Name] = append(st.members[parent.Name], edge{memberUser: u.Username, role: e.Role})
			st.userMemberOf[u.Username] = append(st.userMemberOf[u.Username], edgeUp{group: parent.Name, role: e.Role})
		} else if e.MemberGroupID != nil {
			sub, ok := groupsByID[*e.MemberGroupID]
			if !ok {
				continue
			}
			st.members[parent.Name] = append(st.members[parent.Name], edge{memberGroup: sub.Name, role: e.Role})
			st.memberOf[sub.Name] = append(st.memberOf[sub.Name], edgeUp{group: parent.Name, role: e.Role})
		}
	}

	for _, grant := range snap.Grants {
		g, ok := groupsByID[grant.GroupID]
		if !ok {
			continue
		}
		st.grants[g.Name] = append(st.grants[g.Name], Grant{Permission: grant.PermissionName, Argument: grant.Argument})
	}

	for _, key := range snap.PublicKeys {
		u, ok := usersByID[key.UserID]
		if !ok {
			continue
		}
		st.publicKeys[u.Username] = append(st.publicKeys[u.Username], key)
	}

	return st
}

// GroupDetails resolves a group by name. Returns nil if the group is not in
// the graph (unknown or disabled).
func (g *Graph) GroupDetails(name string) *GroupDetails {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := g.state

	grp, ok := st.groups[name]
	if !ok {
		return nil
	}

	details := &GroupDetails{
		Name:        grp.Name,
		Description: grp.Description,
		Email:       grp.Email,
		Users:       make(map[string]MembershipInfo),
		Subgroups:   make(map[string]MembershipInfo),
		Permissions: append([]Grant(nil), st.grants[name]...),
	}

	for _, up := range st.memberOf[name] {
		details.Parents = append(details.Parents, up.group)
	}
	sort.Strings(details.Parents)

	// Walk downward through nested groups breadth-first. The first time a
	// user or subgroup is reached wins, so distances are minimal. Members
	// reached through nesting report the role of the first edge out of this
	// group on their path, so a subgroup's standing in this group is what
	// shows for everyone inside it.
	type frame struct {
		group        string
		path         []string
		depth        int
		firstHopRole string
	}
	queue := []frame{{group: name, path: []string{name}}}
	seenGroups := map[string]bool{name: true}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		for _, e := range st.members[f.group] {
			role := e.role
			if f.depth > 0 {
				role = f.firstHopRole
			}

			if e.memberUser != "" {
				if _, ok := details.Users[e.memberUser]; ok {
					continue
				}
				details.Users[e.memberUser] = MembershipInfo{
					Role:     role,
					Path:     append(append([]string(nil), f.path...), e.memberUser),
					Distance: f.depth + 1,
				}
				continue
			}

			if seenGroups[e.memberGroup] {
				continue
			}
			seenGroups[e.memberGroup] = true
			path := append(append([]string(nil), f.path...), e.memberGroup)
			details.Subgroups[e.memberGroup] = MembershipInfo{
				Role:     role,
				Path:     path,
				Distance: f.depth + 1,
			}
			queue = append(queue, frame{group: e.memberGroup, path: path, depth: f.depth + 1, firstHopRole: role})
		}
	}

	return details
}

// UserDetails resolves a user by name. Returns nil if the user is not in the
// graph (unknown or disabled).
//
// Permission inheritance skips np-owner edges: an np-owner can approve
// requests for the group but does not receive the group's grants, directly
// or through groups above it.
func (g *Graph) UserDetails(username string) *UserDetails {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := g.state

	u, ok := st.users[username]
	if !ok {
		return nil
	}

	details := &UserDetails{
		Username:   u.Username,
		Email:      u.Email,
		Groups:     make(map[string]MembershipInfo),
		PublicKeys: append([]*models.PublicKey(nil), st.publicKeys[username]...),
	}

	type frame struct {
		group       string
		path        []string
		depth       int
		firstRole   string // role of the user's direct edge this chain started from
		permissions bool   // false once the chain crossed an np-owner edge
	}

	var queue []frame
	visited := make(map[string]bool)
	for _, up := range st.userMemberOf[username] {
		queue = append(queue, frame{
			group:       up.group,
			path:        []string{username, up.group},
			depth:       1,
			firstRole:   up.role,
			permissions: up.role != models.RoleNpOwner,
		})
		visited[up.group] = true
		details.Groups[up.group] = MembershipInfo{
			Role:     up.role,
			Path:     []string{username, up.group},
			Distance: 1,
		}
	}

	permGroups := make(map[string]bool)
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		if f.permissions {
			permGroups[f.group] = true
		}

		for _, up := range st.memberOf[f.group] {
			path := append(append([]string(nil), f.path...), up.group)
			if _, ok := details.Groups[up.group]; !ok {
				// Groups reached through nesting report the role of the
				// user's direct edge at the start of the chain.
				details.Groups[up.group] = MembershipInfo{
					Role:     f.firstRole,
					Path:     path,
					Distance: f.depth + 1,
				}
			}
			childPerms := f.permissions && up.role != models.RoleNpOwner
			// Revisit already-seen groups when this chain carries
			// permissions and the earlier one crossed an np-owner edge.
			if !visited[up.group] || (childPerms && !permGroups[up.group]) {
				visited[up.group] = true
				queue = append(queue, frame{group: up.group, path: path, depth: f.depth + 1, firstRole: f.firstRole, permissions: childPerms})
			}
		}
	}

	for groupName := range permGroups {
		details.Permissions = append(details.Permissions, st.grants[groupName]...)
	}
	sort.Slice(details.Permissions, func(i, j int) bool {
		if details.Permissions[i].Permission != details.Permissions[j].Permission {
			return details.Permissions[i].Permission < details.Permissions[j].Permission
		}
		return details.Permissions[i].Argument < details.Permissions[j].Argument
	})

	return details
}

// HasRole reports whether the user holds at least the given role directly in
// the group. Used by the approval workflow to check approver rights.
func (g *Graph) HasRole(username, groupName string, roles ...string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, up := range g.state.userMemberOf[username] {
		if up.group != groupName {
			continue
		}
		for _, role := range roles {
			if up.role == role {
				return true
			}
		}
	}
	return false
}

// ApproverEmails returns the addresses membership request notifications go
// to: the group's address when set, otherwise the emails of the group's
// direct approvers.
func (g *Graph) ApproverEmails(groupName string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := g.state

	grp, ok := st.groups[groupName]
	if !ok {
		return nil
	}
	if grp.Email != nil && *grp.Email != "" {
		return []string{*grp.Email}
	}

	var emails []string
	seen := make(map[string]bool)
	for _, e := range st.members[groupName] {
		if e.memberUser == "" || !models.IsApproverRole(e.role) {
			continue
		}
		u, ok := st.users[e.memberUser]
		if !ok || seen[u.Email] {
			continue
		}
		seen[u.Email] = true
		emails = append(emails, u.Email)
	}
	sort.Strings(emails)
	return emails
}
