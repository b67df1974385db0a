package recent

import (
	"fmt"
	"testing"
	"time"

	"github.com/starford/sidenote/internal/models"
)

type memStore struct{ list []models.RecentProject }

func (m *memStore) LoadRecent() ([]models.RecentProject, error) {
	return append([]models.RecentProject(nil), m.list...), nil
}

func (m *memStore) SaveRecent(list []models.RecentProject) error {
	m.list = append([]models.RecentProject(nil), list...)
	return nil
}

type tick struct{ t time.Time }

func (c *tick) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func TestAdd_MRUAndDedup(t *testing.T) {
	clock := &tick{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := New(&memStore{}, WithClock(clock.now))

	first, err := tr.Add("/work/a", "")
	if err != nil {
		t.Fatal(err)
	}
	if first.Name != "a" || first.ID != "/work/a" {
		t.Errorf("first = %+v", first)
	}
	_, _ = tr.Add("/work/b", "Bee")
	again, _ := tr.Add("/work/a", "")

	list, _ := tr.List()
	if len(list) != 2 || list[0].RootPath != "/work/a" || list[1].RootPath != "/work/b" {
		t.Fatalf("list = %+v", list)
	}
	if !again.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("createdAt changed: %v != %v", again.CreatedAt, first.CreatedAt)
	}
	if !again.LastOpened.After(first.LastOpened) {
		t.Errorf("lastOpened not bumped")
	}
}

func TestAdd_Capped(t *testing.T) {
	tr := New(&memStore{}, WithMax(3))
	for i := 0; i < 5; i++ {
		if _, err := tr.Add(fmt.Sprintf("/p/%d", i), ""); err != nil {
			t.Fatal(err)
		}
	}
	list, _ := tr.List()
	if len(list) != 3 || list[0].RootPath != "/p/4" || list[2].RootPath != "/p/2" {
		t.Errorf("list = %+v", list)
	}
}

func TestList_EmptyIsNotNil(t *testing.T) {
	list, err := New(&memStore{}).List()
	if err != nil || list == nil {
		t.Errorf("list = %v, err = %v", list, err)
	}
}
