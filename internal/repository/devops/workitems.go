package devops

import (
	"context"
	"net/url"
	"strconv"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
)

// maxWorkItemsPerRequest is the service limit for the batch work item endpoint.
const maxWorkItemsPerRequest = 200

type workItemPayload struct {
	ID        int            `json:"id"`
	Fields    map[string]any `json:"fields"`
	Relations []struct {
		Rel string `json:"rel"`
		URL string `json:"url"`
	} `json:"relations"`
	Links links `json:"_links"`
}

func (p workItemPayload) toDomain() domain.Item {
	item := domain.Item{
		ID:      p.ID,
		Fields:  make(map[string]string, len(p.Fields)),
		HTMLURL: p.Links.html(),
	}
	for name, value := range p.Fields {
		switch v := value.(type) {
		case string:
			item.Fields[name] = v
		case float64:
			item.Fields[name] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			item.Fields[name] = strconv.FormatBool(v)
		}
	}
	for _, rel := range p.Relations {
		item.Relations = append(item.Relations, domain.Relation{Rel: rel.Rel, URL: rel.URL})
	}
	return item
}

// GetWorkItems loads work items with all relations expanded.
func (r *Repository) GetWorkItems(ctx context.Context, project string, ids []int) ([]domain.Item, error) {
	items := make([]domain.Item, 0, len(ids))
	for start := 0; start < len(ids); start += maxWorkItemsPerRequest {
		end := min(start+maxWorkItemsPerRequest, len(ids))
		query := url.Values{}
		query.Set("ids", joinInts(ids[start:end]))
		query.Set("$expand", "all")
		var payload struct {
			Value []workItemPayload `json:"value"`
		}
		if _, err := r.get(ctx, "get_work_items", r.projectURL(r.orgURL, project, "wit/workitems"), query, &payload); err != nil {
			return nil, err
		}
		for _, p := range payload.Value {
			items = append(items, p.toDomain())
		}
	}
	return items, nil
}
