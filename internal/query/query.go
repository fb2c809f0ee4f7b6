package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/loykin/filemetrics/internal/store"
)

// Engine serves the three fixed read views over a store: the paginated
// destination list, the per-probe detail and the size-change aggregate.
// It holds no state and recomputes everything per call.
type Engine struct {
	store store.Store
}

func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// timeLayout is the panel's timestamp presentation format.
const timeLayout = "2006-01-02 15:04:05"

// ListRequest is the data-grid request envelope the panel sends.
type ListRequest struct {
	Draw    int           `json:"draw"`
	Start   int64         `json:"start"`
	Length  int64         `json:"length"`
	Search  SearchClause  `json:"search"`
	Order   []OrderClause `json:"order"`
	Columns []Column      `json:"columns"`
}

type SearchClause struct {
	Value string `json:"value"`
}

type OrderClause struct {
	Column int    `json:"column"` // index into Columns
	Dir    string `json:"dir"`    // "asc" or "desc"
}

type Column struct {
	Name string `json:"name"`
}

// ListResponse mirrors the data-grid contract. SuccessCount and FailedCount
// are tallied over the returned page only, not the filtered set.
type ListResponse struct {
	Draw            int        `json:"draw"`
	RecordsTotal    int64      `json:"recordsTotal"`
	RecordsFiltered int64      `json:"recordsFiltered"`
	SuccessCount    int64      `json:"successCount"`
	FailedCount     int64      `json:"failedCount"`
	Data            []ListItem `json:"data"`
}

type ListItem struct {
	ID          int64  `json:"id"`
	Basename    string `json:"basename"`
	Abspath     string `json:"abspath"`
	TaskSuccess bool   `json:"task_success"`
	StartTime   string `json:"start_time"`
	FinishTime  string `json:"finish_time"`
}

// DetailRow is one probe in the conversion-details view.
type DetailRow struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Abspath  string `json:"abspath"`
	Basename string `json:"basename"`
	Size     int64  `json:"size"`
}

// Totals is the aggregate view. A key is omitted entirely when no
// successful task contributes to it.
type Totals struct {
	Source      *int64 `json:"source,omitempty"`
	Destination *int64 `json:"destination,omitempty"`
}

// Empty returns the well-formed zero envelope for a draw token. It is what
// the panel gets instead of error text.
func Empty(draw int) ListResponse {
	return ListResponse{Draw: draw, Data: []ListItem{}}
}

// List runs the paginated destination list view. An empty store is not an
// error; it yields zero counts and an empty page.
func (e *Engine) List(ctx context.Context, req ListRequest) (ListResponse, error) {
	sortCol, desc := resolveOrder(req)

	total, err := e.store.TaskCount(ctx)
	if err != nil {
		return Empty(req.Draw), err
	}

	rows, filtered, err := e.store.ListDestinations(ctx, store.ListQuery{
		Search: req.Search.Value,
		Sort:   sortCol,
		Desc:   desc,
		Offset: req.Start,
		Limit:  req.Length,
	})
	if err != nil {
		return Empty(req.Draw), err
	}

	resp := ListResponse{
		Draw:            req.Draw,
		RecordsTotal:    total,
		RecordsFiltered: filtered,
		Data:            make([]ListItem, 0, len(rows)),
	}
	for _, r := range rows {
		item := ListItem{
			ID:          r.ProbeID,
			Basename:    r.Basename,
			Abspath:     r.Abspath,
			TaskSuccess: r.Success,
			StartTime:   formatTime(r.StartTime),
			FinishTime:  formatNullTime(r.FinishTime),
		}
		if item.TaskSuccess {
			resp.SuccessCount++
		} else {
			resp.FailedCount++
		}
		resp.Data = append(resp.Data, item)
	}
	return resp, nil
}

// Detail returns the probe rows for the conversionDetails view: every source
// probe of the owning task plus the requested probe itself. Unknown ids
// degrade to an empty list.
func (e *Engine) Detail(ctx context.Context, probeID int64) ([]DetailRow, error) {
	probes, err := e.store.ProbeDetail(ctx, probeID)
	if err != nil {
		return []DetailRow{}, err
	}
	rows := make([]DetailRow, 0, len(probes))
	for _, p := range probes {
		rows = append(rows, DetailRow{
			ID:       p.ID,
			Type:     string(p.Kind),
			Abspath:  p.Abspath,
			Basename: p.Basename,
			Size:     p.Size,
		})
	}
	return rows, nil
}

// TotalSizeChange recomputes the per-kind size sums over successful tasks.
func (e *Engine) TotalSizeChange(ctx context.Context) (Totals, error) {
	totals, err := e.store.SizeTotals(ctx)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Source: totals.Source, Destination: totals.Destination}, nil
}

// resolveOrder maps the data-grid order block onto a routed sort column.
// Missing or unroutable order information falls back to finish_time
// descending, the panel's default view.
func resolveOrder(req ListRequest) (store.SortColumn, bool) {
	col := store.SortFinishTime
	desc := true
	if len(req.Order) == 0 {
		return col, desc
	}
	ord := req.Order[0]
	if ord.Column >= 0 && ord.Column < len(req.Columns) {
		if name := req.Columns[ord.Column].Name; name != "" {
			if c := store.SortColumn(name); routable(c) {
				col = c
			}
		}
	}
	if ord.Dir == "asc" {
		desc = false
	}
	return col, desc
}

func routable(c store.SortColumn) bool {
	_, ok := c.Route()
	return ok
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func formatNullTime(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(timeLayout)
}
