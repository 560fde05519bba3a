package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatty/pkg/conversation"
	"github.com/go-go-golems/chatty/pkg/export"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, pinned first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			for i, conv := range store.List() {
				pin := " "
				if conv.IsPinned {
					pin = "*"
				}
				fmt.Printf("%2d %s %-30s  %s  (%d messages)\n",
					i+1, pin, conv.Title, conv.CreatedAt.Format("2006-01-02 15:04"), len(conv.Messages))
			}
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "export <index>",
		Short: "Export a conversation to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			conv, err := resolveConversation(store, args[0])
			if err != nil {
				return err
			}
			path, err := export.WriteFile(outputDir, conv)
			if err != nil {
				return err
			}
			fmt.Printf("exported %q to %s\n", conv.Title, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "output directory")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			conv, err := resolveConversation(store, args[0])
			if err != nil {
				return err
			}
			store.DeleteConversation(conv.ID)
			fmt.Printf("deleted %q\n", conv.Title)
			return nil
		},
	}
}

func newRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <index> <title>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			conv, err := resolveConversation(store, args[0])
			if err != nil {
				return err
			}
			if !store.RenameConversation(conv.ID, args[1]) {
				return errors.New("title must not be empty")
			}
			fmt.Printf("renamed %q to %q\n", conv.Title, args[1])
			return nil
		},
	}
}

func newPinCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <index>",
		Short: "Toggle a conversation's pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			conv, err := resolveConversation(store, args[0])
			if err != nil {
				return err
			}
			store.TogglePin(conv.ID)
			return nil
		},
	}
}

// resolveConversation maps a 1-based index from `chatty list` back to the
// conversation.
func resolveConversation(store *conversation.Store, arg string) (*conversation.Conversation, error) {
	idx, err := strconv.Atoi(arg)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid conversation index %q", arg)
	}
	list := store.List()
	if idx < 1 || idx > len(list) {
		return nil, errors.Errorf("conversation index %d out of range (1-%d)", idx, len(list))
	}
	return list[idx-1], nil
}
