package control

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/taurus-fleet/taurus/internal/backup"
	"github.com/taurus-fleet/taurus/internal/procutil"
	"github.com/taurus-fleet/taurus/internal/rcon"
	"github.com/taurus-fleet/taurus/internal/tmuxpipe"
)

// dispatch parses one text frame into a VERB and its arguments and
// executes the matching handler. Unknown verbs produce no reply;
// argument-count mismatches reply with "<VERB> Invalid Arguments" and
// execute no side effect.
func dispatch(f *Fleet, text string) string {
	verb, rest := splitVerb(text)
	switch verb {
	case "MSG":
		return cmdMSG(f, rest)
	case "URL":
		return cmdURL(f, rest)
	case "LIST":
		return cmdLIST(f, rest)
	case "BACKUP":
		return cmdBACKUP(f, rest)
	case "LIST_BACKUPS":
		return cmdLISTBACKUPS(f, rest)
	case "RM_BACKUP":
		return cmdRMBACKUP(f, rest)
	case "CP_REGION":
		return cmdCPREGION(f, rest)
	case "CP_STRUCTURE":
		return cmdCPSTRUCTURE(f, rest)
	case "LIST_STRUCTURES":
		return cmdLISTSTRUCTURES(f, rest)
	case "LIST_BRIDGES":
		return cmdLISTBRIDGES(f, rest)
	case "TOGGLE_BRIDGE":
		return cmdTOGGLEBRIDGE(f, rest)
	case "CMD":
		return cmdCMD(f, rest)
	case "RCON":
		return cmdRCON(f, rest)
	case "SHELL":
		return cmdSHELL(f, rest)
	case "RESTART":
		return cmdRESTART(f, rest)
	case "LIST_SESSIONS":
		return cmdLISTSESSIONS(f, rest)
	case "HEARTBEAT":
		return cmdHEARTBEAT(f, rest)
	case "CHECK":
		return cmdCHECK(f, rest)
	case "PING":
		return cmdPING(f, rest)
	default:
		return ""
	}
}

// splitVerb separates "VERB" or "VERB ARGS..." into the verb and the
// (possibly empty) remainder, with no leading space on the remainder.
func splitVerb(text string) (verb, rest string) {
	verb, rest, found := strings.Cut(text, " ")
	if !found {
		return verb, ""
	}
	return verb, rest
}

// fields splits rest on whitespace; used for verbs whose arguments are
// a fixed tuple of tokens rather than one free-text blob.
func fields(rest string) []string {
	if rest == "" {
		return nil
	}
	return strings.Fields(rest)
}

func invalid(verb string) string {
	return verb + " Invalid Arguments"
}

func cmdMSG(f *Fleet, rest string) string {
	if rest == "" {
		return ""
	}
	f.Bridges.BroadcastChat(f.RootCtx, rest)
	return ""
}

func cmdURL(f *Fleet, rest string) string {
	args := fields(rest)
	if len(args) < 1 {
		return invalid("URL")
	}
	url := args[0]
	label := url
	if len(args) > 1 {
		label = strings.Join(args[1:], " ")
	}
	tellraw := fmt.Sprintf(`tellraw @a {"text":%q,"clickEvent":{"action":"open_url","value":%q}}`, label, url)
	f.Bridges.BroadcastRaw(f.RootCtx, tellraw)
	return ""
}

func cmdLIST(f *Fleet, rest string) string {
	sessions := f.Store.Sessions()
	var lines []string
	for _, s := range sessions {
		if s.Rcon == nil {
			continue
		}
		body, err := rcon.SendWithResponse(rcon.Target{IP: s.Rcon.IPOrDefault(), Port: s.Rcon.Port, Password: s.Rcon.Password}, "list")
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", s.Name, body))
	}
	return "LIST " + strings.Join(lines, "\n")
}

func cmdBACKUP(f *Fleet, rest string) string {
	args := fields(rest)
	if len(args) != 1 {
		return invalid("BACKUP")
	}
	name := args[0]
	sess, ok := f.Store.Session(name)
	if !ok {
		return "BACKUP unknown session " + name
	}
	cfg := f.Store.Config()
	dest := sess.Game.BackupDir(cfg.BackupLocation)
	msg := f.Backups.Backup(f.Monitor, name, sess.Game, dest)
	return "BACKUP " + msg
}

func cmdLISTBACKUPS(f *Fleet, rest string) string {
	cfg := f.Store.Config()
	sessions := f.Store.Sessions()
	dirs := make([]string, 0, len(sessions)+1)
	dirs = append(dirs, cfg.BackupLocation)
	for _, s := range sessions {
		dirs = append(dirs, s.Game.BackupDir(cfg.BackupLocation))
	}
	text, err := backup.ListBackups(dirs)
	if err != nil {
		return "LIST_BACKUPS error: " + err.Error()
	}
	return "LIST_BACKUPS " + text
}

func cmdRMBACKUP(f *Fleet, rest string) string {
	args := fields(rest)
	if len(args) != 1 {
		return invalid("RM_BACKUP")
	}
	cfg := f.Store.Config()
	path := filepath.Join(cfg.BackupLocation, args[0])
	if err := os.Remove(path); err != nil {
		return "RM_BACKUP failed: " + err.Error()
	}
	return "RM_BACKUP removed " + args[0]
}

func cmdCPREGION(f *Fleet, rest string) string {
	args := fields(rest)
	if len(args) != 4 {
		return invalid("CP_REGION")
	}
	sessName, dim, xStr, zStr := args[0], args[1], args[2], args[3]
	if dim != "OW" && dim != "NETHER" && dim != "END" {
		return "CP_REGION Invalid Dimension Provided"
	}
	x, errX := strconv.Atoi(xStr)
	z, errZ := strconv.Atoi(zStr)
	if errX != nil || errZ != nil {
		return "CP_REGION Invalid Region Identifier"
	}
	sess, ok := f.Store.Session(sessName)
	if !ok || sess.Game == nil {
		return "CP_REGION unknown session " + sessName
	}
	cfg := f.Store.Config()
	url, err := backup.CopyRegion(sess.Game.FilePath, cfg.WebserverLocation, cfg.WebserverPrefix, dim, x, z)
	if err != nil {
		return "CP_REGION " + err.Error()
	}
	return "CP_REGION " + url
}

func cmdCPSTRUCTURE(f *Fleet, rest string) string {
	args := fields(rest)
	if len(args) != 2 {
		return invalid("CP_STRUCTURE")
	}
	sess, ok := f.Store.Session(args[0])
	if !ok || sess.Game == nil {
		return "CP_STRUCTURE unknown session " + args[0]
	}
	cfg := f.Store.Config()
	url, err := backup.CopyStructure(sess.Game.FilePath, cfg.WebserverLocation, cfg.WebserverPrefix, args[1])
	if err != nil {
		return "CP_STRUCTURE " + err.Error()
	}
	return "CP_STRUCTURE " + url
}

func cmdLISTSTRUCTURES(f *Fleet, rest string) string {
	args := fields(rest)
	if len(args) != 1 {
		return invalid("LIST_STRUCTURES")
	}
	sess, ok := f.Store.Session(args[0])
	if !ok || sess.Game == nil {
		return "LIST_STRUCTURES unknown session " + args[0]
	}
	text, err := backup.ListStructures(sess.Game.FilePath)
	if err != nil {
		return "LIST_STRUCTURES " + err.Error()
	}
	return "LIST_STRUCTURES " + text
}

func cmdLISTBRIDGES(f *Fleet, rest string) string {
	bridges := f.Bridges.Bridges()
	lines := make([]string, 0, len(bridges))
	for _, b := range bridges {
		lines = append(lines, fmt.Sprintf("%s state=%t", b.Name, b.State))
	}
	return "LIST_BRIDGES " + strings.Join(lines, "\n")
}

func cmdTOGGLEBRIDGE(f *Fleet, rest string) string {
	args := fields(rest)
	if len(args) != 1 {
		return invalid("TOGGLE_BRIDGE")
	}
	b, ok := f.Bridges.Find(args[0])
	if !ok {
		return "TOGGLE_BRIDGE unknown bridge " + args[0]
	}
	b.Toggle()
	enabled := b.Enabled != nil && *b.Enabled
	return fmt.Sprintf("TOGGLE_BRIDGE %s enabled=%v", b.Name, enabled)
}

func cmdCMD(f *Fleet, rest string) string {
	args := strings.SplitN(rest, " ", 2)
	if len(args) != 2 || args[0] == "" || args[1] == "" {
		return invalid("CMD")
	}
	tmuxpipe.SendCommand(f.RootCtx, args[0], args[1])
	return ""
}

func cmdRCON(f *Fleet, rest string) string {
	args := strings.SplitN(rest, " ", 2)
	if len(args) != 2 || args[0] == "" || args[1] == "" {
		return invalid("RCON")
	}
	sess, ok := f.Store.Session(args[0])
	if !ok || sess.Rcon == nil {
		return "RCON unknown session or no rcon configured: " + args[0]
	}
	body, err := rcon.SendWithResponse(rcon.Target{IP: sess.Rcon.IPOrDefault(), Port: sess.Rcon.Port, Password: sess.Rcon.Password}, args[1])
	if err != nil {
		return "RCON " + err.Error()
	}
	return "RCON " + body
}

func cmdSHELL(f *Fleet, rest string) string {
	args := fields(rest)
	if len(args) == 0 {
		return ""
	}
	cmd := exec.CommandContext(f.RootCtx, args[0], args[1:]...)
	procutil.SetProcessGroup(cmd)
	_ = cmd.Start()
	go func() {
		_ = cmd.Wait()
		procutil.Reap()
	}()
	return ""
}

func cmdRESTART(f *Fleet, rest string) string {
	cfg := f.Store.Config()
	if cfg.RestartScript == "" {
		return "RESTART no restart_script configured"
	}
	cmd := exec.CommandContext(f.RootCtx, cfg.RestartScript)
	procutil.SetProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return "RESTART failed: " + err.Error()
	}
	go func() {
		_ = cmd.Wait()
		procutil.Reap()
	}()
	return "RESTART restarting"
}

func cmdLISTSESSIONS(f *Fleet, rest string) string {
	raw, err := json.Marshal(f.Store.Sessions())
	if err != nil {
		return "LIST_SESSIONS error: " + err.Error()
	}
	return "LIST_SESSIONS " + string(raw)
}

func cmdHEARTBEAT(f *Fleet, rest string) string {
	return fmt.Sprintf("HEARTBEAT %t", f.Monitor.Healthy())
}

func cmdCHECK(f *Fleet, rest string) string {
	raw, err := f.Monitor.SnapshotJSON()
	if err != nil {
		return "CHECK error: " + err.Error()
	}
	return "CHECK " + string(raw)
}

func cmdPING(f *Fleet, rest string) string {
	return fmt.Sprintf("PONG %d", time.Now().UnixMilli())
}
