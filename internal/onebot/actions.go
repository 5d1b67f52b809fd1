package onebot

import (
	"context"
	"time"

	"github.com/bitly/go-simplejson"

	"github.com/keshon/warden/internal/domain"
)

// Reply answers msg in its chat, quoting it. Group replies also mention the
// sender.
func (c *Client) Reply(ctx context.Context, msg domain.Message, text string) error {
	if msg.IsGroup() {
		_, err := c.Call(ctx, "send_group_msg", map[string]any{
			"group_id": msg.GroupID,
			"message":  []Segment{replySegment(msg.ID), atSegment(msg.SenderID), textSegment(" " + text)},
		})
		return err
	}
	_, err := c.Call(ctx, "send_private_msg", map[string]any{
		"user_id": msg.SenderID,
		"message": []Segment{replySegment(msg.ID), textSegment(text)},
	})
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	_, err := c.Call(ctx, "delete_msg", map[string]any{"message_id": messageID})
	return err
}

// MuteSender bans a member from speaking for d, rounded up to whole seconds.
func (c *Client) MuteSender(ctx context.Context, groupID, userID int64, d time.Duration) error {
	secs := int64((d + time.Second - 1) / time.Second)
	_, err := c.Call(ctx, "set_group_ban", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"duration": secs,
	})
	return err
}

// RoleOf fetches a member's current role, bypassing the implementation's cache.
func (c *Client) RoleOf(ctx context.Context, groupID, userID int64) (domain.Role, error) {
	data, err := c.Call(ctx, "get_group_member_info", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"no_cache": true,
	})
	if err != nil {
		return domain.RoleMember, err
	}
	js, err := simplejson.NewJson(data)
	if err != nil {
		return domain.RoleMember, err
	}
	return domain.ParseRole(js.Get("role").MustString()), nil
}
