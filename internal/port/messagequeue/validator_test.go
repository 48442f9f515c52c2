package messagequeue

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		wantErr string
	}{
		{"commit linked", SubjectCommitLinked, `{"project_id":"p1","task_id":"5","sha":"abc","branch_name":"main","link_type":"FIXES"}`, ""},
		{"pr linked", SubjectPRLinked, `{"project_id":"p1","task_id":"5","number":3,"status":"OPEN","merged":false,"link_type":"REFERENCE"}`, ""},
		{"status changed", SubjectTaskStatusChanged, `{"task_id":"5","old_status":"TODO","new_status":"DONE","changed_at":"2024-01-01T00:00:00Z"}`, ""},
		{"unknown subject passes", "other.subject", `{"foo":"bar"}`, ""},
		{"invalid json", SubjectCommitLinked, `{not json`, "invalid JSON"},
		{"wrong shape", SubjectPRLinked, `"just a string"`, "schema validation failed"},
		{"wrong field type", SubjectPRLinked, `{"number":"three"}`, "schema validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.subject, []byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("task.status.changed"); got != SubjectTaskStatusChanged {
		t.Fatalf("Subject() = %q, want %q", got, SubjectTaskStatusChanged)
	}
}
