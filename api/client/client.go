package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/vocdoni/zk-disclosure/api"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/storage"
	"github.com/vocdoni/zk-disclosure/types"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second
	// DefaultRetryInterval is the time between request attempts
	DefaultRetryInterval = 500 * time.Millisecond
)

// HTTPclient is the disclosure node API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// New creates a client for the API host and checks that it is reachable.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	if _, err := c.do(HTTPGET, nil, nil, api.PingEndpoint); err != nil {
		return nil, err
	}
	return c, nil
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// Method is either GET or POST. If POST, a JSON struct should be attached.  Returns the response,
// the status code and an error.
//
// Supports query parameters via `params` slice. If the slice is not empty, it should contain pairs of strings;
// the first element of each pair is the key, and the second element is the value.
func (c *HTTPclient) Request(method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}

	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i < len(params)-1; i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}

	headers := http.Header{}
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
		headers.Set("Accept", "application/json")
	}
	log.Debugw("http client request", "type", method, "url", u.String(), "bytes", len(body))

	var resp *http.Response
	attempt := 0
	retry := backoff.WithMaxRetries(backoff.NewConstantBackOff(DefaultRetryInterval), uint64(max(c.retries-1, 0)))
	err := backoff.Retry(func() error {
		attempt++
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, u.String(), reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header = headers
		resp, err = c.c.Do(req)
		if err != nil {
			log.Warnw("http request failed", "error", err.Error(), "attempt", attempt, "retries", c.retries)
		}
		return err
	}, retry)
	if err != nil {
		return nil, 0, fmt.Errorf("http request ultimately failed after retries: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// do performs the request and decodes API errors. Responses with a status
// other than 200 are returned as api.Error.
func (c *HTTPclient) do(method string, jsonBody any, out any, urlPath ...string) (int, error) {
	data, status, err := c.Request(method, jsonBody, nil, urlPath...)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		apiErr := api.Error{HTTPstatus: status}
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Err == nil {
			apiErr.Err = fmt.Errorf("API error: %d (%s)", status, bytes.TrimSpace(data))
		}
		return status, apiErr
	}
	if out == nil {
		return status, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return status, fmt.Errorf("failed to decode response: %w", err)
	}
	return status, nil
}

// Info returns the program identity and the verifier setup of the node.
func (c *HTTPclient) Info() (*api.Info, error) {
	info := &api.Info{}
	if _, err := c.do(HTTPGET, nil, info, api.InfoEndpoint); err != nil {
		return nil, err
	}
	return info, nil
}

// SubmitVote queues a signed vote and returns the id of its prove job.
func (c *HTTPclient) SubmitVote(vote *api.Vote) (uuid.UUID, error) {
	resp := &api.NewJob{}
	if _, err := c.do(HTTPPOST, vote, resp, api.VotesEndpoint); err != nil {
		return uuid.Nil, err
	}
	return resp.JobID, nil
}

// Job returns the status of a prove job.
func (c *HTTPclient) Job(id uuid.UUID) (*api.JobStatus, error) {
	status := &api.JobStatus{}
	if _, err := c.do(HTTPGET, nil, status, "votes", id.String()); err != nil {
		return nil, err
	}
	return status, nil
}

// WaitJob polls the job status until the job finishes or the timeout
// expires.
func (c *HTTPclient) WaitJob(id uuid.UUID, timeout time.Duration) (*api.JobStatus, error) {
	var status *api.JobStatus
	errPending := errors.New("job not finished")
	poll := backoff.NewExponentialBackOff()
	poll.MaxElapsedTime = timeout
	err := backoff.Retry(func() error {
		var err error
		if status, err = c.Job(id); err != nil {
			return backoff.Permanent(err)
		}
		if !status.Status.Finished() {
			return errPending
		}
		return nil
	}, poll)
	if err != nil {
		return status, fmt.Errorf("job %s: %w", id, err)
	}
	return status, nil
}

// NullifiersRoot returns the root of the nullifier registry.
func (c *HTTPclient) NullifiersRoot() (*api.NullifiersRoot, error) {
	root := &api.NullifiersRoot{}
	if _, err := c.do(HTTPGET, nil, root, api.NullifiersRootEndpoint); err != nil {
		return nil, err
	}
	return root, nil
}

// Nullifier returns the vote record registered for the nullifier.
func (c *HTTPclient) Nullifier(nullifier string) (*storage.VoteRecord, error) {
	vote := &storage.VoteRecord{}
	if _, err := c.do(HTTPGET, nil, vote, "nullifiers", nullifier); err != nil {
		return nil, err
	}
	return vote, nil
}

// NullifierProof returns the registry proof of the nullifier.
func (c *HTTPclient) NullifierProof(nullifier string) (*storage.NullifierProof, error) {
	proof := &storage.NullifierProof{}
	if _, err := c.do(HTTPGET, nil, proof, "nullifiers", nullifier, "proof"); err != nil {
		return nil, err
	}
	return proof, nil
}

// VerifyVote verifies a seal and its journal against the program of the
// node, or against programID if it is not nil.
func (c *HTTPclient) VerifyVote(sealBytes, journal []byte, programID *types.Digest) (*api.VerifiedVote, error) {
	verified := &api.VerifiedVote{}
	req := &api.VerifyVote{Seal: sealBytes, Journal: journal, ProgramID: programID}
	if _, err := c.do(HTTPPOST, req, verified, api.VerifyVoteEndpoint); err != nil {
		return nil, err
	}
	return verified, nil
}

// PollVotes returns the vote records registered for the poll.
func (c *HTTPclient) PollVotes(pollID uint64) ([]*storage.VoteRecord, error) {
	votes := &api.PollVotes{}
	if _, err := c.do(HTTPGET, nil, votes, "polls", strconv.FormatUint(pollID, 10), "votes"); err != nil {
		return nil, err
	}
	return votes.Votes, nil
}
