package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/WendelHime/peernet/internal/network"
)

// handleCommand runs one line of the interactive prompt and reports whether
// the user asked to quit.
func handleCommand(n *network.PeerNetwork, line string, out io.Writer) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "help":
		fmt.Fprintln(out, "Available Commands:")
		fmt.Fprintln(out, "  peers               - List connected peers")
		fmt.Fprintln(out, "  discovered          - List every discovered peer")
		fmt.Fprintln(out, "  stats               - Show network statistics")
		fmt.Fprintln(out, "  send <msg>          - Broadcast a message to every peer")
		fmt.Fprintln(out, "  sendto <id> <msg>   - Send a message to one peer")
		fmt.Fprintln(out, "  disconnect <id>     - Disconnect from a peer")
		fmt.Fprintln(out, "  quit                - Stop the node and exit")

	case "peers":
		peers := n.GetConnectedPeers()
		fmt.Fprintf(out, "Connected peers: %d\n", len(peers))
		for _, id := range peers {
			fmt.Fprintf(out, "  - %s\n", id)
		}

	case "discovered":
		peers := n.GetAllDiscoveredPeers()
		fmt.Fprintf(out, "Discovered peers: %d\n", len(peers))
		for _, info := range peers {
			fmt.Fprintf(out, "  - %s at %s (last seen %s)\n", info.ID, info.Addr, info.LastSeenTime().Format(time.TimeOnly))
		}

	case "stats":
		stats := n.GetNetworkStats()
		fmt.Fprintf(out, "Peer id    : %s\n", stats.PeerID)
		fmt.Fprintf(out, "Connected  : %d\n", stats.ConnectedPeers)
		fmt.Fprintf(out, "Discovered : %d\n", stats.DiscoveredPeers)

	case "send":
		if rest == "" {
			fmt.Fprintln(out, "Error: missing message. Usage: send <msg>")
			return false
		}
		result, err := n.BroadcastTextDetailed(rest)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "Sent to %d peers", result.SuccessfulCount())
		if failed := result.FailedPeers(); len(failed) > 0 {
			fmt.Fprintf(out, ", failed for %s", strings.Join(failed, ", "))
		}
		fmt.Fprintln(out)

	case "sendto":
		id, msg, _ := strings.Cut(rest, " ")
		msg = strings.TrimSpace(msg)
		if id == "" || msg == "" {
			fmt.Fprintln(out, "Error: Usage: sendto <id> <msg>")
			return false
		}
		if err := n.SendText(id, msg); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "Sent to %s\n", id)

	case "disconnect":
		if rest == "" {
			fmt.Fprintln(out, "Error: missing peer id. Usage: disconnect <id>")
			return false
		}
		if err := n.DisconnectPeer(rest); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "Disconnected from %s\n", rest)

	case "quit", "exit":
		fmt.Fprintln(out, "Stopping node...")
		return true

	default:
		fmt.Fprintf(out, "Unknown command %q, type 'help'\n", cmd)
	}
	return false
}
