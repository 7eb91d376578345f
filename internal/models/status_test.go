package models

import "testing"

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   string
	}{
		{
			name:   "plain status unchanged",
			status: "TiepNhan1",
			want:   "TiepNhan1",
		},
		{
			name:   "legacy decorated suffix stripped",
			status: "telesale_TuVan3_1",
			want:   "telesale_TuVan3",
		},
		{
			name:   "group prefixed status unchanged",
			status: "telesale_TuVan3",
			want:   "telesale_TuVan3",
		},
		{
			name:   "decorated stage six status",
			status: "NhapHoc6_2",
			want:   "NhapHoc6",
		},
		{
			name:   "empty string",
			status: "",
			want:   "",
		},
		{
			name:   "bare numeric token kept when nothing precedes a stage digit",
			status: "note_12",
			want:   "note_12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeStatus(tt.status); got != tt.want {
				t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestStageOfStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   int
	}{
		{
			name:   "intake status",
			status: StatusNew1,
			want:   1,
		},
		{
			name:   "messaging status",
			status: StatusMessaged2,
			want:   2,
		},
		{
			name:   "synthesized assignment status",
			status: "telesale_TuVan3",
			want:   3,
		},
		{
			name:   "legacy decorated assignment status",
			status: "telesale_TuVan3_1",
			want:   3,
		},
		{
			name:   "enrollment status",
			status: StatusEnrolled6,
			want:   6,
		},
		{
			name:   "unknown value without stage suffix",
			status: "pending",
			want:   0,
		},
		{
			name:   "empty value",
			status: "",
			want:   0,
		},
		{
			name:   "digit outside stage range",
			status: "Khac9",
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StageOfStatus(tt.status); got != tt.want {
				t.Errorf("StageOfStatus(%q) = %d, want %d", tt.status, got, tt.want)
			}
		})
	}
}

func TestAssignmentStatus(t *testing.T) {
	if got := AssignmentStatus("telesale"); got != "telesale_TuVan3" {
		t.Errorf("AssignmentStatus(telesale) = %q, want telesale_TuVan3", got)
	}
	if StageOfStatus(AssignmentStatus("sales")) != StageAssignment {
		t.Errorf("assignment status should belong to stage %d", StageAssignment)
	}
}
