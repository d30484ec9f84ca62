package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"yappify/errors"
)

func TestChatService_DirectChat(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")

	_, err := s.chatService.AccessOrCreateDirectChat(alice, alice)
	req.ErrorIs(err, errors.ErrInvalidArgument)

	_, err = s.chatService.AccessOrCreateDirectChat(alice, "ghost")
	req.ErrorIs(err, errors.ErrNotFound)

	chat, err := s.chatService.AccessOrCreateDirectChat(alice, bob)
	req.NoError(err)
	req.False(chat.IsGroup)
	req.ElementsMatch([]string{alice, bob}, chat.Members)

	// Either direction resolves to the same chat.
	again, err := s.chatService.AccessOrCreateDirectChat(bob, alice)
	req.NoError(err)
	req.Equal(chat.ID, again.ID)
}

func TestChatService_DirectChatConcurrent(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")

	const racers = 8
	ids := make([]string, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat, err := s.chatService.AccessOrCreateDirectChat(alice, bob)
			require.NoError(t, err)
			ids[i] = chat.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		req.Equal(ids[0], id)
	}
}

func TestChatService_CreateGroup(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")
	carol := s.seedUser(t, "carol")

	_, err := s.chatService.CreateGroup("", []string{bob, carol}, alice)
	req.ErrorIs(err, errors.ErrInvalidArgument)

	// The creator does not count towards the two-member minimum.
	_, err = s.chatService.CreateGroup("team", []string{bob, alice}, alice)
	req.ErrorIs(err, errors.ErrInvalidArgument)

	chat, err := s.chatService.CreateGroup("team", []string{bob, carol}, alice)
	req.NoError(err)
	req.True(chat.IsGroup)
	req.Equal(alice, chat.Admin)
	req.Equal([]string{bob, carol, alice}, chat.Members)
}

func TestChatService_MembershipAdminOnly(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")
	carol := s.seedUser(t, "carol")
	dave := s.seedUser(t, "dave")

	chat, err := s.chatService.CreateGroup("team", []string{bob, carol}, alice)
	req.NoError(err)

	_, err = s.chatService.AddMember(chat.ID, dave, bob)
	req.ErrorIs(err, errors.ErrForbidden)

	updated, err := s.chatService.AddMember(chat.ID, dave, alice)
	req.NoError(err)
	req.Contains(updated.Members, dave)

	_, err = s.chatService.AddMember(chat.ID, dave, alice)
	req.ErrorIs(err, errors.ErrAlreadyExists)

	_, err = s.chatService.RemoveMember(chat.ID, alice, alice)
	req.ErrorIs(err, errors.ErrInvalidArgument)

	updated, err = s.chatService.RemoveMember(chat.ID, dave, alice)
	req.NoError(err)
	req.NotContains(updated.Members, dave)

	_, err = s.chatService.RemoveMember(chat.ID, dave, alice)
	req.ErrorIs(err, errors.ErrInvalidArgument)
}

func TestChatService_ConcurrentMembershipChanges(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")
	carol := s.seedUser(t, "carol")
	dave := s.seedUser(t, "dave")

	chat, err := s.chatService.CreateGroup("team", []string{bob, carol}, alice)
	req.NoError(err)

	// An admin add and a self-leave race on the same group. Conflict
	// retries settle them one after the other, never interleaved.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.chatService.AddMember(chat.ID, dave, alice)
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		require.NoError(t, s.chatService.LeaveGroup(chat.ID, carol))
	}()
	wg.Wait()

	final, err := s.chats.FindChat(chat.ID)
	req.NoError(err)
	req.Contains(final.Members, dave)
	req.NotContains(final.Members, carol)
	req.True(final.HasMember(final.Admin))
}

func TestChatService_RenameAndTransfer(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")
	carol := s.seedUser(t, "carol")
	outsider := s.seedUser(t, "outsider")

	chat, err := s.chatService.CreateGroup("team", []string{bob, carol}, alice)
	req.NoError(err)

	renamed, err := s.chatService.RenameGroup(chat.ID, "squad", alice)
	req.NoError(err)
	req.Equal("squad", renamed.Name)

	_, err = s.chatService.RenameGroup(chat.ID, "nope", bob)
	req.ErrorIs(err, errors.ErrForbidden)

	_, err = s.chatService.TransferAdmin(chat.ID, alice, outsider)
	req.ErrorIs(err, errors.ErrInvalidArgument)

	updated, err := s.chatService.TransferAdmin(chat.ID, alice, bob)
	req.NoError(err)
	req.Equal(bob, updated.Admin)

	// Alice lost the role, bob holds it now.
	_, err = s.chatService.RenameGroup(chat.ID, "nope", alice)
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestChatService_LeaveGroupAdminHandoff(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")
	carol := s.seedUser(t, "carol")

	chat, err := s.chatService.CreateGroup("team", []string{bob, carol}, alice)
	req.NoError(err)
	req.Equal([]string{bob, carol, alice}, chat.Members)

	// The admin leaves: first remaining member in join order inherits.
	req.NoError(s.chatService.LeaveGroup(chat.ID, alice))

	updated, err := s.chats.FindChat(chat.ID)
	req.NoError(err)
	req.Equal(bob, updated.Admin)
	req.Equal([]string{bob, carol}, updated.Members)
}

func TestChatService_LastLeaveDeletesEverything(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")
	carol := s.seedUser(t, "carol")

	chat, err := s.chatService.CreateGroup("team", []string{bob, carol}, alice)
	req.NoError(err)
	_, err = s.messageService.Send(context.Background(), alice, chat.ID, "bye all")
	req.NoError(err)

	req.NoError(s.chatService.LeaveGroup(chat.ID, bob))
	req.NoError(s.chatService.LeaveGroup(chat.ID, carol))
	req.NoError(s.chatService.LeaveGroup(chat.ID, alice))

	_, err = s.chats.FindChat(chat.ID)
	req.ErrorIs(err, errors.ErrNotFound)

	msgs, err := s.messages.ListMessages(chat.ID, 0, 10)
	req.NoError(err)
	req.Empty(msgs)
}

func TestChatService_LeaveDirectChatRejected(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")

	chat, err := s.chatService.AccessOrCreateDirectChat(alice, bob)
	req.NoError(err)

	err = s.chatService.LeaveGroup(chat.ID, alice)
	req.ErrorIs(err, errors.ErrInvalidArgument)
}

func TestChatService_DeleteGroup(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")
	carol := s.seedUser(t, "carol")

	chat, err := s.chatService.CreateGroup("team", []string{bob, carol}, alice)
	req.NoError(err)
	_, err = s.messageService.Send(context.Background(), bob, chat.ID, "hello")
	req.NoError(err)

	req.ErrorIs(s.chatService.DeleteGroup(chat.ID, bob), errors.ErrForbidden)
	req.NoError(s.chatService.DeleteGroup(chat.ID, alice))

	_, err = s.chats.FindChat(chat.ID)
	req.ErrorIs(err, errors.ErrNotFound)
	msgs, err := s.messages.ListMessages(chat.ID, 0, 10)
	req.NoError(err)
	req.Empty(msgs)
}

func TestChatService_FetchChatsOrdering(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")
	carol := s.seedUser(t, "carol")

	direct, err := s.chatService.AccessOrCreateDirectChat(alice, bob)
	req.NoError(err)
	group, err := s.chatService.CreateGroup("team", []string{bob, carol}, alice)
	req.NoError(err)

	// Activity in the direct chat puts it first.
	_, err = s.messageService.Send(context.Background(), bob, direct.ID, "ping")
	req.NoError(err)

	summaries, err := s.chatService.FetchChats(alice)
	req.NoError(err)
	req.Len(summaries, 2)
	req.Equal(direct.ID, summaries[0].Chat.ID)
	req.NotNil(summaries[0].LatestMessage)
	req.Equal("ping", summaries[0].LatestMessage.Content)
	req.Equal(group.ID, summaries[1].Chat.ID)
	req.Nil(summaries[1].LatestMessage)
}

func TestChatService_GetChatMembersOnly(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.seedUser(t, "alice")
	bob := s.seedUser(t, "bob")
	outsider := s.seedUser(t, "outsider")

	chat, err := s.chatService.AccessOrCreateDirectChat(alice, bob)
	req.NoError(err)

	found, err := s.chatService.GetChat(chat.ID, alice)
	req.NoError(err)
	req.Equal(chat.ID, found.ID)

	_, err = s.chatService.GetChat(chat.ID, outsider)
	req.ErrorIs(err, errors.ErrForbidden)

	_, err = s.chatService.GetChat(fmt.Sprintf("missing-%s", chat.ID), alice)
	req.ErrorIs(err, errors.ErrNotFound)
}
