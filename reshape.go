package participants

import (
	"encoding/json"
	"fmt"
	"slices"
)

// rawStatus mirrors to_jsonb(participants_status) plus the enrichment keys
// the engagement lateral folds in.
type rawStatus struct {
	ID           int64          `json:"id"`
	EmployerID   string         `json:"employer_id"`
	SiteID       int64          `json:"site_id"`
	Status       Status         `json:"status"`
	Current      bool           `json:"current"`
	Data         map[string]any `json:"data"`
	CreatedAt    string         `json:"created_at"`
	EmployerInfo *EmployerInfo  `json:"employerInfo"`
}

// rawRos mirrors to_jsonb(ros_status) plus the resolved site name.
type rawRos struct {
	ID        int64          `json:"id"`
	SiteID    int64          `json:"site_id"`
	IsCurrent bool           `json:"is_current"`
	Data      map[string]any `json:"data"`
	CreatedAt string         `json:"created_at"`
	SiteName  string         `json:"siteName"`
}

// reshapeRow converts one scanned store row into zero, one, or several
// logical output rows.
//
// For privileged roles the aggregate view already carries normalized status
// and ros collections, so the row passes through one-to-one. For row-level
// roles the engagement records are decomposed, each record's data is already
// enriched with its site name, and a participant with several concurrent
// engagement records is split into one output row per record, each exposing
// only its own record.
//
// Return-of-service records are suppressed for row-level roles unless the
// hiring site is among the caller's own sites. This gate can only run after
// the joins have executed, because it depends on the global-hire record.
func reshapeRow(r storeRow, user User, privileged bool) ([]Row, error) {
	var attributes map[string]any
	if len(r.body) > 0 {
		if err := json.Unmarshal(r.body, &attributes); err != nil {
			return nil, fmt.Errorf("participant %d attributes: %w", r.id, err)
		}
	}

	if privileged {
		row := Row{ID: r.id, Attributes: attributes}
		if len(r.statusInfos) > 0 {
			if err := json.Unmarshal(r.statusInfos, &row.StatusInfos); err != nil {
				return nil, fmt.Errorf("participant %d status infos: %w", r.id, err)
			}
		}
		if len(r.rosInfos) > 0 {
			if err := json.Unmarshal(r.rosInfos, &row.RosStatuses); err != nil {
				return nil, fmt.Errorf("participant %d ros infos: %w", r.id, err)
			}
			sortRosDescending(row.RosStatuses)
		}
		return []Row{row}, nil
	}

	statusInfos, err := decodeStatusRecords(r.id, r.engRecords)
	if err != nil {
		return nil, err
	}

	rosStatuses, err := decodeRosRecords(r.id, r.rosRecords)
	if err != nil {
		return nil, err
	}
	// The post-retrieval gate: ROS milestones are visible only when the
	// hiring site belongs to the caller.
	if !r.hiredSiteID.Valid || !slices.Contains(user.Sites, r.hiredSiteID.Int64) {
		rosStatuses = nil
	}

	var distance *float64
	if r.distance.Valid {
		d := r.distance.Float64
		distance = &d
	}

	base := Row{
		ID:          r.id,
		Attributes:  attributes,
		RosStatuses: rosStatuses,
		Distance:    distance,
	}

	// Multi-org split: one logical row per concurrent engagement record.
	if len(statusInfos) > 1 {
		out := make([]Row, 0, len(statusInfos))
		for _, si := range statusInfos {
			row := base
			row.StatusInfos = []StatusInfo{si}
			out = append(out, row)
		}
		return out, nil
	}

	base.StatusInfos = statusInfos
	return []Row{base}, nil
}

// decodeStatusRecords normalizes the engagement lateral's jsonb aggregate
// into StatusInfo entries.
func decodeStatusRecords(participantID int64, records []byte) ([]StatusInfo, error) {
	if len(records) == 0 {
		return nil, nil
	}
	var raw []rawStatus
	if err := json.Unmarshal(records, &raw); err != nil {
		return nil, fmt.Errorf("participant %d engagement records: %w", participantID, err)
	}
	out := make([]StatusInfo, 0, len(raw))
	for _, rs := range raw {
		out = append(out, StatusInfo{
			ID:           rs.ID,
			CreatedAt:    rs.CreatedAt,
			EmployerID:   rs.EmployerID,
			SiteID:       rs.SiteID,
			Status:       rs.Status,
			Data:         rs.Data,
			EmployerInfo: rs.EmployerInfo,
		})
	}
	return out, nil
}

// decodeRosRecords normalizes the ros lateral's jsonb aggregate, newest
// first, folding the resolved site name into each entry's data.
func decodeRosRecords(participantID int64, records []byte) ([]RosStatus, error) {
	if len(records) == 0 {
		return nil, nil
	}
	var raw []rawRos
	if err := json.Unmarshal(records, &raw); err != nil {
		return nil, fmt.Errorf("participant %d ros records: %w", participantID, err)
	}
	out := make([]RosStatus, 0, len(raw))
	for _, rr := range raw {
		data := rr.Data
		if rr.SiteName != "" {
			if data == nil {
				data = map[string]any{}
			} else {
				// Copy before annotating; the decoded map may be shared.
				copied := make(map[string]any, len(data)+1)
				for k, v := range data {
					copied[k] = v
				}
				data = copied
			}
			data["siteName"] = rr.SiteName
		}
		out = append(out, RosStatus{
			ID:        rr.ID,
			SiteID:    rr.SiteID,
			IsCurrent: rr.IsCurrent,
			CreatedAt: rr.CreatedAt,
			Data:      data,
		})
	}
	sortRosDescending(out)
	return out, nil
}

func sortRosDescending(ros []RosStatus) {
	slices.SortFunc(ros, func(a, b RosStatus) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		default:
			return 0
		}
	})
}

// MarshalJSON emits the participant's attribute document merged with id,
// statusInfos, rosStatuses, and distance. Distance is omitted entirely when
// no site-distance join produced a value; it never defaults to a sentinel.
func (r Row) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(r.Attributes)+4)
	for k, v := range r.Attributes {
		merged[k] = v
	}
	merged["id"] = r.ID
	merged["statusInfos"] = r.StatusInfos
	merged["rosStatuses"] = r.RosStatuses
	if r.Distance != nil {
		merged["distance"] = *r.Distance
	}
	return json.Marshal(merged)
}
