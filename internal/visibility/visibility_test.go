package visibility_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ryanhung919/x-men-sub002/internal/db"
	"github.com/ryanhung919/x-men-sub002/internal/domain"
	"github.com/ryanhung919/x-men-sub002/internal/migrate"
	"github.com/ryanhung919/x-men-sub002/internal/repo"
	"github.com/ryanhung919/x-men-sub002/internal/visibility"
)

const seedTime = "2024-01-01T00:00:00Z"

type testEnv struct {
	db  *sql.DB
	r   repo.Repo
	vis visibility.Service
}

// newTestEnv seeds a small org: engineering (alice, bob), sales (carol),
// and dave with no department. The project is linked to engineering.
//
//	task-1: created by alice, assigned to bob, in the project
//	task-2: created by carol, assigned to carol
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()

	for _, d := range []domain.Department{
		{ID: "eng", Name: "Engineering"},
		{ID: "sales", Name: "Sales"},
	} {
		if err := r.InsertDepartment(ctx, d); err != nil {
			t.Fatalf("insert department: %v", err)
		}
	}
	eng, sales := "eng", "sales"
	for _, u := range []domain.User{
		{ID: "alice", FirstName: "Alice", LastName: "Tan", DepartmentID: &eng, CreatedAt: seedTime},
		{ID: "bob", FirstName: "Bob", LastName: "Ng", DepartmentID: &eng, CreatedAt: seedTime},
		{ID: "carol", FirstName: "Carol", LastName: "Lim", DepartmentID: &sales, CreatedAt: seedTime},
		{ID: "dave", FirstName: "Dave", LastName: "Koh", CreatedAt: seedTime},
	} {
		if err := r.InsertUser(ctx, u); err != nil {
			t.Fatalf("insert user %s: %v", u.ID, err)
		}
	}
	if err := r.InsertProject(ctx, domain.Project{ID: "p1", Name: "Platform", CreatedAt: seedTime}); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := r.LinkProjectDepartment(ctx, "p1", "eng"); err != nil {
		t.Fatalf("link project department: %v", err)
	}

	p1 := "p1"
	for _, task := range []domain.Task{
		{ID: "task-1", Title: "Ship release", Status: domain.StatusToDo, PriorityBucket: 3,
			CreatorID: "alice", ProjectID: &p1, CreatedAt: seedTime, UpdatedAt: seedTime},
		{ID: "task-2", Title: "Close deal", Status: domain.StatusToDo, PriorityBucket: 3,
			CreatorID: "carol", CreatedAt: seedTime, UpdatedAt: seedTime},
	} {
		if err := r.InsertTask(ctx, task); err != nil {
			t.Fatalf("insert task %s: %v", task.ID, err)
		}
	}
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	alice := "alice"
	carol := "carol"
	assigns := []domain.TaskAssignment{
		{TaskID: "task-1", AssigneeID: "bob", AssignorID: &alice, CreatedAt: seedTime},
		{TaskID: "task-2", AssigneeID: "carol", AssignorID: &carol, CreatedAt: seedTime},
	}
	for _, a := range assigns {
		if err := r.InsertAssignmentTx(ctx, tx, a); err != nil {
			t.Fatalf("insert assignment: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return testEnv{db: conn, r: r, vis: visibility.Service{DB: conn}}
}

func mustSee(t *testing.T, env testEnv, actor, task string, want bool) {
	t.Helper()
	got, err := env.vis.CanSeeTask(context.Background(), actor, task)
	if err != nil {
		t.Fatalf("CanSeeTask(%s,%s): %v", actor, task, err)
	}
	if got != want {
		t.Fatalf("CanSeeTask(%s,%s) = %v, want %v", actor, task, got, want)
	}
}

func TestCreatorAlwaysSeesOwnTask(t *testing.T) {
	env := newTestEnv(t)
	mustSee(t, env, "alice", "task-1", true)
	mustSee(t, env, "carol", "task-2", true)
}

func TestColleagueOfAssigneeSeesTask(t *testing.T) {
	env := newTestEnv(t)
	// alice shares engineering with bob, who is assigned
	mustSee(t, env, "alice", "task-1", true)
	// bob is the assignee himself
	mustSee(t, env, "bob", "task-1", true)
}

func TestStrangerCannotSeeTask(t *testing.T) {
	env := newTestEnv(t)
	mustSee(t, env, "carol", "task-1", false)
	mustSee(t, env, "bob", "task-2", false)
}

func TestActorWithoutDepartmentSeesOnlyOwnTasks(t *testing.T) {
	env := newTestEnv(t)
	mustSee(t, env, "dave", "task-1", false)
	mustSee(t, env, "dave", "task-2", false)

	ctx := context.Background()
	if err := env.r.InsertTask(ctx, domain.Task{
		ID: "task-3", Title: "Lone wolf", Status: domain.StatusToDo, PriorityBucket: 3,
		CreatorID: "dave", CreatedAt: seedTime, UpdatedAt: seedTime,
	}); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	mustSee(t, env, "dave", "task-3", true)
}

func TestVisibilityIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		mustSee(t, env, "alice", "task-1", true)
		mustSee(t, env, "carol", "task-1", false)
	}
}

func TestUnknownTaskIsInvisible(t *testing.T) {
	env := newTestEnv(t)
	mustSee(t, env, "alice", "no-such-task", false)
}

func TestAssignmentVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// the assignee always sees their own assignment, even when the task
	// itself is not visible to them
	ok, err := env.vis.CanSeeAssignment(ctx, "dave", "task-1", "dave")
	if err != nil || !ok {
		t.Fatalf("assignee self-visibility = %v, %v", ok, err)
	}
	// otherwise assignment visibility follows task visibility
	ok, err = env.vis.CanSeeAssignment(ctx, "carol", "task-1", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("stranger can see assignment of invisible task")
	}
	ok, err = env.vis.CanSeeAssignment(ctx, "alice", "task-1", "bob")
	if err != nil || !ok {
		t.Fatalf("colleague assignment visibility = %v, %v", ok, err)
	}
}

func TestVisibleAssignees(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	names, err := env.vis.VisibleAssignees(ctx, "alice", "task-1")
	if err != nil {
		t.Fatalf("visible assignees: %v", err)
	}
	if len(names) != 1 || names[0].ID != "bob" || names[0].FirstName != "Bob" {
		t.Fatalf("unexpected assignees %+v", names)
	}

	// invisible task yields no identities, not an error
	names, err = env.vis.VisibleAssignees(ctx, "carol", "task-1")
	if err != nil {
		t.Fatal(err)
	}
	if names != nil {
		t.Fatalf("stranger saw assignees %+v", names)
	}
}

func TestProjectVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ok, err := env.vis.CanSeeProject(ctx, "alice", "p1")
	if err != nil || !ok {
		t.Fatalf("engineering actor project visibility = %v, %v", ok, err)
	}
	ok, err = env.vis.CanSeeProject(ctx, "carol", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("sales actor can see engineering project")
	}
	ok, err = env.vis.CanSeeProject(ctx, "dave", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("department-less actor can see project")
	}
}

func TestDepartmentVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ok, err := env.vis.CanSeeDepartment(ctx, "alice", "eng")
	if err != nil || !ok {
		t.Fatalf("department visibility via project = %v, %v", ok, err)
	}
	ok, err = env.vis.CanSeeDepartment(ctx, "carol", "eng")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("sales actor can see engineering department")
	}
}
