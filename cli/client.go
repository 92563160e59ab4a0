package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/impedance/impedance"
	"go.viam.com/impedance/telemetry"
	"go.viam.com/impedance/web"
)

const requestTimeout = 10 * time.Second

var (
	safetyColor = color.New(color.FgRed, color.Bold)
	heldColor   = color.New(color.FgYellow)
)

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// apiClient talks to the REST API of one server.
type apiClient struct {
	address string
	debug   string
	http    *http.Client
}

func newAPIClient(c *cli.Context) *apiClient {
	return &apiClient{
		address: c.String(addressFlag),
		debug:   c.String(debugFlag),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// call sends body as JSON and decodes a JSON answer into out when out is not nil. Error answers
// carry the server's message.
func (ac *apiClient) call(c *cli.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(c.Context, method, "http://"+ac.address+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if ac.debug != "" {
		req.Header.Set(web.DebugHeader, ac.debug)
	}
	resp, err := ac.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "could not reach impedance server at %s", ac.address)
	}
	defer utils.UncheckedErrorFunc(resp.Body.Close)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return errors.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return errors.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func floatArgs(c *cli.Context) ([]float64, error) {
	if c.NArg() == 0 {
		return nil, errors.New("at least one value is required")
	}
	out := make([]float64, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value %q", arg)
		}
		out = append(out, v)
	}
	return out, nil
}

func printJSON(c *cli.Context, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", data)
	return nil
}

// StatusAction is the corresponding Action for 'status'.
func StatusAction(c *cli.Context) error {
	var status map[string]interface{}
	if err := newAPIClient(c).call(c, http.MethodGet, "/api/status", nil, &status); err != nil {
		return err
	}
	return printJSON(c, status)
}

// JointsAction is the corresponding Action for 'joints'. It prints one table row per joint.
func JointsAction(c *cli.Context) error {
	var status impedance.Status
	if err := newAPIClient(c).call(c, http.MethodGet, "/api/status", nil, &status); err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "q", "qdot", "q desired", "tau", "stiffness", "damping"})
	for i := range status.Measured.Q {
		t.AppendRow(table.Row{
			i,
			formatAt(status.Measured.Q, i),
			formatAt(status.Measured.Qdot, i),
			formatAt(status.DesiredQ, i),
			formatAt(status.Command.Tau, i),
			formatAt(status.Gains.K, i),
			formatAt(status.Gains.D, i),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", status.ActiveMode, status.Family})
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

func formatAt(v []float64, i int) string {
	if i >= len(v) {
		return "-"
	}
	return strconv.FormatFloat(v[i], 'f', 3, 64)
}

// LoopAction is the corresponding Action for 'loop'.
func LoopAction(c *cli.Context) error {
	var stats map[string]interface{}
	if err := newAPIClient(c).call(c, http.MethodGet, "/api/loop", nil, &stats); err != nil {
		return err
	}
	return printJSON(c, stats)
}

// ModeAction is the corresponding Action for 'mode'.
func ModeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one mode is required")
	}
	var out struct {
		Requested string `json:"requested"`
	}
	if err := newAPIClient(c).call(c, http.MethodPost, "/api/mode", web.ModeRequest{Mode: c.Args().First()}, &out); err != nil {
		return err
	}
	printf(c.App.Writer, "requested %s", out.Requested)
	return nil
}

func setGains(c *cli.Context, kind string) error {
	values, err := floatArgs(c)
	if err != nil {
		return err
	}
	ac := newAPIClient(c)
	var gains map[string][]float64
	switch idx := c.Int(jointFlag); {
	case idx >= 0:
		if len(values) != 1 {
			return errors.Errorf("--%s takes exactly one value, got %d", jointFlag, len(values))
		}
		err = ac.call(c, http.MethodPut, fmt.Sprintf("/api/%s/%d", kind, idx), web.ValueRequest{Value: &values[0]}, &gains)
	case len(values) == 1:
		err = ac.call(c, http.MethodPost, "/api/"+kind+"/uniform", web.ValueRequest{Value: &values[0]}, &gains)
	default:
		err = ac.call(c, http.MethodPost, "/api/"+kind, web.ValuesRequest{Values: values}, &gains)
	}
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s: %v", kind, gains[kind])
	return nil
}

// StiffnessAction is the corresponding Action for 'stiffness'.
func StiffnessAction(c *cli.Context) error {
	return setGains(c, "stiffness")
}

// DampingAction is the corresponding Action for 'damping'.
func DampingAction(c *cli.Context) error {
	return setGains(c, "damping")
}

// CommandAction is the corresponding Action for 'command'.
func CommandAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one command is required")
	}
	return newAPIClient(c).call(c, http.MethodPost, "/api/command", web.CommandRequest{Command: c.Args().First()}, nil)
}

func postValues(c *cli.Context, path string) error {
	values, err := floatArgs(c)
	if err != nil {
		return err
	}
	return newAPIClient(c).call(c, http.MethodPost, path, web.ValuesRequest{Values: values}, nil)
}

// TwistAction is the corresponding Action for 'twist'.
func TwistAction(c *cli.Context) error {
	return postValues(c, "/api/cartesian/twist")
}

// WrenchAction is the corresponding Action for 'wrench'.
func WrenchAction(c *cli.Context) error {
	return postValues(c, "/api/cartesian/wrench")
}

// JointTargetAction is the corresponding Action for 'joint-target'.
func JointTargetAction(c *cli.Context) error {
	return postValues(c, "/api/joint/target")
}

// TargetAction is the corresponding Action for 'target'.
func TargetAction(c *cli.Context) error {
	return newAPIClient(c).call(c, http.MethodPost, "/api/cartesian/target", web.PoseRequest{
		Translation: c.Float64Slice(translationFlag),
		Orientation: c.Float64Slice(orientationFlag),
	}, nil)
}

// TailAction is the corresponding Action for 'tail'.
func TailAction(c *cli.Context) error {
	u := url.URL{Scheme: "ws", Host: c.String(addressFlag), Path: "/ws/telemetry"}
	conn, resp, err := websocket.DefaultDialer.DialContext(c.Context, u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "could not connect to %s", u.String())
	}
	utils.UncheckedError(resp.Body.Close())
	defer utils.UncheckedErrorFunc(conn.Close)

	// unblock the read below when the command is interrupted
	stop := make(chan struct{})
	defer close(stop)
	utils.PanicCapturingGo(func() {
		select {
		case <-c.Context.Done():
			utils.UncheckedError(conn.Close())
		case <-stop:
		}
	})

	limit := c.Int(countFlag)
	for n := 0; limit <= 0 || n < limit; n++ {
		var s telemetry.Sample
		if err := conn.ReadJSON(&s); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || c.Context.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "reading telemetry")
		}
		flags := ""
		if s.SafetyTripped {
			flags += " " + safetyColor.Sprint("SAFETY")
		}
		if s.Held {
			flags += " " + heldColor.Sprint("HELD")
		}
		printf(c.App.Writer, "%d %s %s tau=%.3f qdot=%.3f wrench=%.3f%s",
			s.Cycle, s.Mode, s.Family, s.Tau, s.Qdot, s.Wrench, flags)
	}
	return nil
}
