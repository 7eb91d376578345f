package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Pipeline stages, in order. Stage numbers appear as the numeric suffix of
// every status value belonging to that stage.
const (
	StageIntake       = 1
	StageMessaging    = 2
	StageAssignment   = 3
	StageConsultation = 4
	StageAppointment  = 5
	StageEnrollment   = 6

	StageMin = StageIntake
	StageMax = StageEnrollment
)

// Status vocabulary. Assignment statuses (stage 3) are synthesized from the
// assignee's group as "<group>_TuVan3" and are not listed individually.
const (
	StatusNew1           = "TiepNhan1"
	StatusNoContact1     = "KhongLienLac1"
	StatusMessaged2      = "NhanTin2"
	StatusMessageFailed2 = "NhanTinLoi2"
	StatusNeedsReassign3 = "ChoGiaoLai3"
	StatusConsulted4     = "TuVanXong4"
	StatusConsultFailed4 = "TuVanHuy4"
	StatusAppointment5   = "HenLich5"
	StatusNoShow5        = "KhongDen5"
	StatusEnrolled6      = "NhapHoc6"
	StatusDeclined6      = "TuChoi6"
)

// AssignmentStatusSuffix is the stage-3 status stem appended to the canonical
// group of the resolved assignee, e.g. "telesale_TuVan3".
const AssignmentStatusSuffix = "TuVan3"

// AssignmentStatus synthesizes the stage-3 status value for a group.
func AssignmentStatus(group string) string {
	return fmt.Sprintf("%s_%s", group, AssignmentStatusSuffix)
}

// NormalizeStatus strips one trailing "_<n>" decoration that legacy data may
// carry, e.g. "telesale_TuVan3_1" -> "telesale_TuVan3". Values without a
// purely numeric final token are returned unchanged.
func NormalizeStatus(status string) string {
	idx := strings.LastIndex(status, "_")
	if idx < 0 {
		return status
	}
	tail := status[idx+1:]
	if tail == "" {
		return status
	}
	if _, err := strconv.Atoi(tail); err != nil {
		return status
	}
	// A bare "_<n>" token is legacy decoration only when the remainder still
	// ends with a stage digit of its own.
	rest := status[:idx]
	if rest == "" || !endsWithStageDigit(rest) {
		return status
	}
	return rest
}

// StageOfStatus returns the pipeline stage a status value belongs to, derived
// from its numeric suffix after normalization, or 0 when the value carries no
// recognizable stage suffix.
func StageOfStatus(status string) int {
	s := NormalizeStatus(status)
	if s == "" {
		return 0
	}
	last := s[len(s)-1]
	if last < '0' || last > '9' {
		return 0
	}
	stage := int(last - '0')
	if stage < StageMin || stage > StageMax {
		return 0
	}
	return stage
}

func endsWithStageDigit(s string) bool {
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	return last >= '1' && last <= '6'
}
