package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/sshbridge/bridge"
	"github.com/mensylisir/sshbridge/common"
	"github.com/mensylisir/sshbridge/logger"
)

// maxMessageBytes bounds a single incoming JSON-RPC line.
const maxMessageBytes = 10 * 1024 * 1024

// Server exposes the bridge as JSON-RPC tools over a stdio-style byte
// stream. It owns no SSH state of its own; everything remote goes through
// the bridge connection.
type Server struct {
	conn         bridge.Connection
	timeout      time.Duration
	maxChars     int
	disableSudo  bool
	instructions string

	in  io.Reader
	out io.Writer

	// writeMu serializes response writes; tool calls may finish from
	// different goroutines in the future.
	writeMu sync.Mutex

	log *logrus.Entry
}

// New creates a server around an established (but not necessarily
// connected) bridge.
func New(conn bridge.Connection, timeout time.Duration, maxChars int, disableSudo bool, in io.Reader, out io.Writer) *Server {
	return &Server{
		conn:        conn,
		timeout:     timeout,
		maxChars:    maxChars,
		disableSudo: disableSudo,
		in:          in,
		out:         out,
		log:         logger.Log.WithField(common.ComponentName, "server"),
	}
}

// SetInstructions sets the free-form instructions string reported to
// clients during the initialize handshake.
func (s *Server) SetInstructions(instructions string) {
	s.instructions = instructions
}

// Serve reads requests until the input stream closes or the context is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if resp := s.handleMessage(ctx, line); resp != nil {
			if err := s.writeResponse(resp); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

// handleMessage parses and dispatches one message. Notifications (no id)
// produce no response.
func (s *Server) handleMessage(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return &Response{
			JSONRPC: jsonRPCVersion,
			Error:   &ErrorObject{Code: codeParseError, Message: "parse error: " + err.Error()},
		}
	}

	reqLog := s.log.WithField(common.RequestID, shortID())
	reqLog.Debugf("Handling method %q", req.Method)

	var result interface{}
	var errObj *ErrorObject

	switch req.Method {
	case "initialize":
		result = s.initializeResult()
	case "notifications/initialized", "initialized":
		return nil
	case "tools/list":
		result = ListToolsResult{Tools: s.tools()}
	case "tools/call":
		result, errObj = s.handleCall(ctx, req.Params, reqLog)
	case "ping":
		result = struct{}{}
	default:
		errObj = &ErrorObject{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	if req.ID == nil {
		// Notification; outcome has nowhere to go.
		return nil
	}

	return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result, Error: errObj}
}

func (s *Server) initializeResult() InitializeResult {
	return InitializeResult{
		ProtocolVersion: "2024-11-05",
		ServerInfo:      ServerInfo{Name: common.AppName, Version: common.Version},
		Instructions:    s.instructions,
	}
}

func (s *Server) tools() []Tool {
	tools := []Tool{
		{
			Name:        "exec",
			Description: "Execute a shell command on the remote SSH server and return the output.",
			InputSchema: commandSchema("Shell command to execute on the remote SSH server"),
		},
	}

	if !s.disableSudo {
		tools = append(tools, Tool{
			Name:        "sudo-exec",
			Description: "Execute a shell command on the remote SSH server using sudo. Will use sudo password if provided, otherwise assumes passwordless sudo.",
			InputSchema: commandSchema("Shell command to execute with sudo on the remote SSH server"),
		})
	}

	tools = append(tools,
		Tool{
			Name:        "upload",
			Description: "Upload a local file to the remote SSH server.",
			InputSchema: transferSchema("localPath", "Local file to upload", "remotePath", "Destination path on the remote server"),
		},
		Tool{
			Name:        "download",
			Description: "Download a file from the remote SSH server.",
			InputSchema: transferSchema("remotePath", "Remote file to download", "localPath", "Destination path on the local machine"),
		},
	)

	return tools
}

func (s *Server) handleCall(ctx context.Context, params json.RawMessage, log *logrus.Entry) (interface{}, *ErrorObject) {
	var call CallParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &ErrorObject{Code: codeInvalidParams, Message: "invalid tools/call params: " + err.Error()}
	}

	log = log.WithField(common.ToolName, call.Name)

	switch call.Name {
	case "exec":
		command, ok := stringArg(call.Arguments, "command")
		if !ok {
			return nil, &ErrorObject{Code: codeInvalidParams, Message: "Missing required parameter: command"}
		}
		return s.execTool(ctx, command, false, log), nil

	case "sudo-exec", "sudo_exec":
		if s.disableSudo {
			return nil, &ErrorObject{Code: codeInvalidParams, Message: "sudo-exec tool is disabled"}
		}
		command, ok := stringArg(call.Arguments, "command")
		if !ok {
			return nil, &ErrorObject{Code: codeInvalidParams, Message: "Missing required parameter: command"}
		}
		return s.execTool(ctx, command, true, log), nil

	case "upload":
		local, okLocal := stringArg(call.Arguments, "localPath")
		remote, okRemote := stringArg(call.Arguments, "remotePath")
		if !okLocal || !okRemote {
			return nil, &ErrorObject{Code: codeInvalidParams, Message: "Missing required parameters: localPath, remotePath"}
		}
		if err := s.conn.Upload(ctx, local, remote); err != nil {
			log.Errorf("Upload failed: %v", err)
			return errorResult("Error: " + err.Error()), nil
		}
		return textResult(fmt.Sprintf("Uploaded %s to %s", local, remote)), nil

	case "download":
		remote, okRemote := stringArg(call.Arguments, "remotePath")
		local, okLocal := stringArg(call.Arguments, "localPath")
		if !okLocal || !okRemote {
			return nil, &ErrorObject{Code: codeInvalidParams, Message: "Missing required parameters: remotePath, localPath"}
		}
		if err := s.conn.Download(ctx, remote, local); err != nil {
			log.Errorf("Download failed: %v", err)
			return errorResult("Error: " + err.Error()), nil
		}
		return textResult(fmt.Sprintf("Downloaded %s to %s", remote, local)), nil

	default:
		return nil, &ErrorObject{Code: codeInvalidParams, Message: fmt.Sprintf("Unknown tool: %s", call.Name)}
	}
}

// execTool runs the exec or sudo-exec tool. Sanitization and execution
// failures become error-flagged tool results, not protocol errors.
func (s *Server) execTool(ctx context.Context, command string, sudo bool, log *logrus.Entry) ToolResult {
	sanitized, err := bridge.SanitizeCommand(command, s.maxChars)
	if err != nil {
		log.Errorf("Command sanitization failed: %v", err)
		return errorResult("Error: " + err.Error())
	}

	if err := s.conn.EnsureConnected(ctx); err != nil {
		log.Errorf("Failed to ensure SSH connection: %v", err)
		return errorResult("SSH connection error: " + err.Error())
	}

	if sudo {
		sanitized = bridge.WrapSudoCommand(sanitized, s.conn.SudoPassword())
		log.Debug("Wrapped command with sudo (password hidden)")
	} else if s.conn.HasSuPassword() {
		// Elevation is opportunistic here; failure degrades to
		// unprivileged execution.
		if err := s.conn.EnsureElevated(ctx); err != nil {
			log.Debugf("Elevation failed, will run as normal user: %v", err)
		}
	}

	output, err := s.conn.Exec(ctx, sanitized, s.timeout)
	if err != nil {
		log.Errorf("Command execution failed: %v", err)
		return errorResult("Error: " + err.Error())
	}

	text := output.Stdout
	if output.Stderr != "" {
		if text != "" {
			text += "\n--- stderr ---\n"
		}
		text += output.Stderr
	}

	if !output.Success() {
		return errorResult(text)
	}
	return textResult(text)
}

func (s *Server) writeResponse(resp *Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.out.Write(append(payload, '\n'))
	return err
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	if !ok || str == "" {
		return "", false
	}
	return str, true
}

func shortID() string {
	return uuid.New().String()[:8]
}
