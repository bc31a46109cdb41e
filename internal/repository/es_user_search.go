package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/weiawesome/focus-room/internal/config"
	"github.com/weiawesome/focus-room/internal/domain"
)

const userIndexMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "username":     {"type": "search_as_you_type"},
      "display_name": {"type": "search_as_you_type"},
      "email":        {"type": "search_as_you_type"},
      "tier":         {"type": "keyword"}
    }
  }
}`

type userDocument struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Tier        string `json:"tier"`
}

// ESUserSearch implements UserSearch on an Elasticsearch index.
type ESUserSearch struct {
	client *elasticsearch.Client
	index  string
}

func NewESUserSearch(cfg config.SearchConfig) (*ESUserSearch, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ESUserSearch{client: client, index: cfg.Index}, nil
}

// EnsureIndex creates the users index with its mapping when missing.
func (r *ESUserSearch) EnsureIndex(ctx context.Context) error {
	res, err := r.client.Indices.Exists([]string{r.index}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = r.client.Indices.Create(r.index,
		r.client.Indices.Create.WithContext(ctx),
		r.client.Indices.Create.WithBody(strings.NewReader(userIndexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

func (r *ESUserSearch) Search(ctx context.Context, query, excludeID string, limit int) ([]domain.User, error) {
	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query": query,
						"type":  "bool_prefix",
						"fields": []string{
							"username", "username._2gram", "username._3gram",
							"display_name", "display_name._2gram", "display_name._3gram",
							"email",
						},
					},
				},
				"must_not": map[string]interface{}{
					"term": map[string]interface{}{"id": excludeID},
				},
			},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch error: %s", res.String())
	}

	var result esResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	users := make([]domain.User, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		var doc userDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			continue
		}
		users = append(users, domain.User{
			ID:          doc.ID,
			Username:    doc.Username,
			DisplayName: doc.DisplayName,
			Email:       doc.Email,
			Tier:        doc.Tier,
		})
	}
	return users, nil
}

func (r *ESUserSearch) Index(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(userDocument{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Tier:        user.Tier,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user document: %w", err)
	}

	res, err := r.client.Index(r.index, bytes.NewReader(data),
		r.client.Index.WithContext(ctx),
		r.client.Index.WithDocumentID(user.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index user: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

func (r *ESUserSearch) Remove(ctx context.Context, userID string) error {
	res, err := r.client.Delete(r.index, userID, r.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

// esResponse is the generic Elasticsearch search response structure.
type esResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

var _ UserSearch = (*ESUserSearch)(nil)
