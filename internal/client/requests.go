package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/MarcoPoloResearchLab/keepnote/internal/requests"
)

// Requests wraps the pro request endpoints.
type Requests struct {
	client *Client
}

// ListMine returns the requests submitted by the caller.
func (r *Requests) ListMine(ctx context.Context) ([]requests.Request, error) {
	result := make([]requests.Request, 0)
	if err := r.client.do(ctx, http.MethodGet, notesPath+"/getRequestsByUserId", nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListPendingAll returns every request awaiting approval. Administrators only.
func (r *Requests) ListPendingAll(ctx context.Context) ([]requests.Request, error) {
	result := make([]requests.Request, 0)
	if err := r.client.do(ctx, http.MethodGet, notesPath+"/proUser/false", nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Submit files a new pro request.
func (r *Requests) Submit(ctx context.Context, amount float64, paymentStatus bool) (requests.Request, error) {
	if amount <= 0 {
		return requests.Request{}, requests.ErrInvalidAmount
	}
	query := url.Values{}
	query.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	query.Set("paymentStatus", strconv.FormatBool(paymentStatus))

	var created requests.Request
	if err := r.client.do(ctx, http.MethodPost, notesPath+"/addRequest", query, nil, &created); err != nil {
		return requests.Request{}, err
	}
	return created, nil
}

// Approve grants pro status for the request with the given id. Administrators only.
func (r *Requests) Approve(ctx context.Context, id int64) (requests.Request, error) {
	var approved requests.Request
	path := notesPath + "/updateUserToPro/" + strconv.FormatInt(id, 10)
	if err := r.client.do(ctx, http.MethodPut, path, nil, nil, &approved); err != nil {
		return requests.Request{}, err
	}
	return approved, nil
}
