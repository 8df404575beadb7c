package sqlxrepos

import (
	"testing"

	"github.com/somahq/soma/core"
)

func Test_orderBy(t *testing.T) {
	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     string
		wantErr  bool
	}{
		{name: "fallback when empty", want: " ORDER BY created_at DESC"},
		{
			name:     "sortable fields render",
			ordering: []core.DBOrdering{{Field: "title", Ascending: true}, {Field: "created_at"}},
			want:     " ORDER BY title ASC, created_at DESC",
		},
		{
			name:     "unknown field is rejected",
			ordering: []core.DBOrdering{{Field: "password_hash", Ascending: true}},
			wantErr:  true,
		},
		{
			name:     "sql fragments are rejected",
			ordering: []core.DBOrdering{{Field: "(SELECT 1); DROP TABLE course; --", Ascending: true}},
			wantErr:  true,
		},
		{
			name:     "one bad term rejects the whole clause",
			ordering: []core.DBOrdering{{Field: "title", Ascending: true}, {Field: "lol"}},
			wantErr:  true,
		},
	}

	sortable := map[string]bool{"title": true, "created_at": true}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := orderBy(tt.ordering, sortable, "created_at DESC")
			if tt.wantErr {
				vErr, ok := err.(*core.ValidationError)
				if !ok {
					t.Fatalf("orderBy() error = %v, want *core.ValidationError", err)
				}
				if len(vErr.Fields) == 0 || vErr.Fields[0].Field != "ordering" {
					t.Errorf("orderBy() error fields = %v, want ordering field error", vErr.Fields)
				}
				return
			}
			if err != nil {
				t.Fatalf("orderBy() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("orderBy() = %q, want %q", got, tt.want)
			}
		})
	}
}
