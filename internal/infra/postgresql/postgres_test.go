package postgresql

import "testing"

func TestPoolSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		concurrency int
		wantOpen    int
		wantIdle    int
	}{
		{name: "default fan-out", concurrency: 16, wantOpen: 21, wantIdle: 5},
		{name: "small fan-out keeps floor", concurrency: 2, wantOpen: 10, wantIdle: 2},
		{name: "zero", concurrency: 0, wantOpen: 10, wantIdle: 2},
		{name: "large fan-out", concurrency: 64, wantOpen: 69, wantIdle: 17},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotOpen, gotIdle := poolSize(tt.concurrency)
			if gotOpen != tt.wantOpen || gotIdle != tt.wantIdle {
				t.Fatalf("poolSize(%d) = %d/%d, want %d/%d", tt.concurrency, gotOpen, gotIdle, tt.wantOpen, tt.wantIdle)
			}
		})
	}
}
