/*
Package particle talks to the Particle cloud to run functions on the bike's
Photon controller.
*/
package particle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"moul.io/http2curl"
)

// DefaultBaseURL is the Particle cloud API endpoint
const DefaultBaseURL = "https://api.particle.io"

// Dispatcher is the thing that can run a named function on the device
type Dispatcher interface {
	CallFunction(ctx context.Context, fn string) (*Outcome, error)
}

// Client calls Particle cloud functions over HTTP
type Client struct {
	baseURL   string
	deviceID  string
	token     string
	client    *http.Client
	printCurl bool
}

// Validate the built in Client meets the Dispatcher interface
var _ Dispatcher = (*Client)(nil)

// Outcome is the interpreted result of a cloud function call
type Outcome struct {
	Code    int
	Success bool
	Message string
	// ReturnValue is the int the device function returned; only meaningful
	// when Success is true
	ReturnValue int
}

// functionResponse is the Particle cloud's reply shape
type functionResponse struct {
	ID          string `json:"id"`
	Connected   bool   `json:"connected"`
	ReturnValue int    `json:"return_value"`
}

// Option is just an option for Client
type Option func() (func(*Client), error)

func success(opt func(*Client)) Option {
	return func() (func(*Client), error) {
		return opt, nil
	}
}

// WithDeviceID sets the target Photon device id
func WithDeviceID(s string) Option {
	return success(func(c *Client) {
		c.deviceID = s
	})
}

// WithToken sets the Particle access token
func WithToken(s string) Option {
	return success(func(c *Client) {
		c.token = s
	})
}

// WithBaseURL overrides the cloud endpoint, mostly for tests
func WithBaseURL(s string) Option {
	return success(func(c *Client) {
		c.baseURL = strings.TrimSuffix(s, "/")
	})
}

// WithClient sets the http client
func WithClient(hc *http.Client) Option {
	return success(func(c *Client) {
		c.client = hc
	})
}

// WithPrintCurl prints out the curl command for each request
func WithPrintCurl() Option {
	return success(func(c *Client) {
		c.printCurl = true
	})
}

// New returns a new Client using functional options
func New(options ...Option) (*Client, error) {
	c := &Client{
		baseURL: DefaultBaseURL,
		client:  http.DefaultClient,
	}
	for _, option := range options {
		opt, err := option()
		if err != nil {
			return nil, err
		}
		opt(c)
	}

	if os.Getenv("DEBUG_CURL") != "" {
		c.printCurl = true
	}

	if c.deviceID == "" {
		return nil, errors.New("must set a device id")
	}
	if c.token == "" {
		return nil, errors.New("must set an access token")
	}
	return c, nil
}

// CallFunction runs the named function on the device and interprets the
// cloud's status code. A non-200 code is an unsuccessful Outcome, not an
// error; errors mean the call itself could not be made or read.
func (c *Client) CallFunction(ctx context.Context, fn string) (*Outcome, error) {
	form := url.Values{
		"access_token": {c.token},
		"arg":          {""},
	}
	address := fmt.Sprintf("%v/v1/devices/%v/%v", c.baseURL, c.deviceID, fn)
	req, err := http.NewRequestWithContext(ctx, "POST", address, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if c.printCurl {
		command, _ := http2curl.GetCurlCommand(req)
		fmt.Fprintf(os.Stderr, "%v\n", command)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()

	out := &Outcome{
		Code:    res.StatusCode,
		Success: res.StatusCode == http.StatusOK,
		Message: MessageForCode(res.StatusCode),
	}
	if out.Success {
		var fr functionResponse
		if derr := json.NewDecoder(res.Body).Decode(&fr); derr != nil {
			return nil, fmt.Errorf("could not decode function response: %w", derr)
		}
		out.ReturnValue = fr.ReturnValue
	}
	return out, nil
}

// MessageForCode maps a Particle cloud status code to user-facing text
func MessageForCode(code int) string {
	switch code {
	case 200:
		return "Command sent successfully."
	case 400:
		return "Command Failed! Is the bike on?"
	case 401:
		return "Control not Authorized!"
	case 403:
		return "Control not Authorized for this Device!"
	case 404:
		return "Device not available!"
	case 408:
		return "Command timed out!"
	case 429:
		return "Command speed limit exceeded!"
	case 500:
		return "Server error encountered!"
	default:
		return "An unknown failure occurred."
	}
}
