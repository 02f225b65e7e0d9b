package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/murmur/memory"
	"github.com/spf13/cobra"
)

var rememberCmd = &cobra.Command{
	Use:   "remember <text>",
	Short: "Store a memory",
	Long:  `Store an utterance as an atom, or a durable fact/boundary as a pin, and index its vector.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRemember,
}

var (
	rememberSession  string
	rememberAuthor   string
	rememberSalience float64
	rememberPin      string
)

func init() {
	rootCmd.AddCommand(rememberCmd)

	rememberCmd.Flags().StringVar(&rememberSession, "session", "", "Session ID (generated when empty)")
	rememberCmd.Flags().StringVar(&rememberAuthor, "author", memory.AuthorUser, "Author (user or agent)")
	rememberCmd.Flags().Float64Var(&rememberSalience, "salience", 0.5, "Salience in [0,1]")
	rememberCmd.Flags().StringVar(&rememberPin, "pin", "", "Store as a pin of this type (fact or boundary) instead of an atom")
}

func runRemember(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	sessionID := rememberSession
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	if rememberPin != "" {
		return rememberAsPin(ctx, rt, args[0], sessionID)
	}

	atom, err := rt.store.CreateAtom(ctx, &memory.Atom{
		TS:        time.Now().UTC(),
		SessionID: sessionID,
		Author:    rememberAuthor,
		TextRaw:   args[0],
		Salience:  rememberSalience,
	})
	if err != nil {
		return fmt.Errorf("failed to store atom: %w", err)
	}
	if err := rt.vectors.UpsertAtom(ctx, atom); err != nil {
		fmt.Printf("Atom %d stored; vector indexing failed: %v\n", atom.ID, err)
		return nil
	}

	fmt.Printf("Atom %d stored (session %s)\n", atom.ID, sessionID)
	return nil
}

func rememberAsPin(ctx context.Context, rt *runtime, text, sessionID string) error {
	if rememberPin != memory.PinTypeFact && rememberPin != memory.PinTypeBoundary {
		return fmt.Errorf("unknown pin type: %s", rememberPin)
	}

	pin, err := rt.store.CreatePin(ctx, &memory.Pin{
		SessionID: sessionID,
		Type:      rememberPin,
		Text:      text,
		Priority:  rememberSalience,
	})
	if err != nil {
		return fmt.Errorf("failed to store pin: %w", err)
	}
	if err := rt.vectors.UpsertPin(ctx, pin); err != nil {
		fmt.Printf("Pin %d stored; vector indexing failed: %v\n", pin.ID, err)
		return nil
	}

	fmt.Printf("Pin %d stored (%s, session %s)\n", pin.ID, pin.Type, sessionID)
	return nil
}
