// Command raftkv-client is a reference client for exercising a raftkv
// cluster by hand — the CLI harness named as a supplemented feature in
// SPEC_FULL.md §12. It sends a single GET or PUT and prints the reply,
// following one redirect before giving up (spec.md's non-goal of
// client-side retry policy means it does not retry on fail/timeout
// beyond that).
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nthu-dsrg/raftkv/transport"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var targetPort int
	var timeout time.Duration

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "send a GET to a replica, following at most one redirect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(targetPort, timeout, transport.Message{Type: transport.KindGet, Key: args[0], MID: uuid.NewString()})
		},
	}

	putCmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "send a PUT to a replica, following at most one redirect",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(targetPort, timeout, transport.Message{Type: transport.KindPut, Key: args[0], Value: args[1], MID: uuid.NewString()})
		},
	}

	root := &cobra.Command{Use: "raftkv-client"}
	root.PersistentFlags().IntVar(&targetPort, "port", 0, "UDP port of the replica to contact first")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to wait for a reply")
	root.MarkPersistentFlagRequired("port")
	root.AddCommand(getCmd, putCmd)
	return root
}

func sendAndPrint(port int, timeout time.Duration, req transport.Message) error {
	conn, err := transport.ListenUDP(0)
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := roundTrip(conn, port, req, timeout)
	if err != nil {
		return err
	}
	if reply.Type == transport.KindRedirect {
		leaderPort, err := strconv.Atoi(reply.Leader)
		if err != nil {
			return fmt.Errorf("raftkv-client: cannot dial redirect target %q: %w", reply.Leader, err)
		}
		if reply, err = roundTrip(conn, leaderPort, req, timeout); err != nil {
			return err
		}
	}

	switch reply.Type {
	case transport.KindOk:
		if req.Type == transport.KindGet {
			fmt.Println(reply.Value)
		} else {
			fmt.Println("ok")
		}
	case transport.KindRedirect:
		fmt.Fprintf(os.Stderr, "redirected again to %s, giving up\n", reply.Leader)
	case transport.KindFail:
		fmt.Fprintln(os.Stderr, "fail")
	}
	return nil
}

func roundTrip(conn *transport.UDPConn, port int, req transport.Message, timeout time.Duration) (transport.Message, error) {
	// Peer ids double as localhost UDP ports (transport.UDPConn's
	// resolution convention); the reference client's own "id" doesn't
	// matter to the protocol as long as it is non-empty: a replica
	// learns the sender's address under that src and replies to it.
	req.Src = uuid.NewString()
	req.Dst = fmt.Sprintf("%d", port)
	req.Leader = transport.UnknownLeader
	if err := conn.Send(req); err != nil {
		return transport.Message{}, err
	}
	m, ok, err := conn.Recv(timeout)
	if err != nil {
		return transport.Message{}, err
	}
	if !ok {
		return transport.Message{}, fmt.Errorf("raftkv-client: timed out waiting for reply")
	}
	return m, nil
}
