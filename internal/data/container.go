package data

import "slices"

// Container is the capability shared by channels and DMs: both hold members
// and an ordered list of message ids, but they decide owner rights differently.
type Container interface {
	Kind() ContainerKind
	ContainerID() int
	DisplayName() string
	Members() []int
	HasMember(userID int) bool
	MessageIDs() []int

	// OwnerCapable reports whether u has elevated rights over the container.
	OwnerCapable(u *User) bool

	AppendMessage(messageID int)
	RemoveMessage(messageID int)
}

var (
	_ Container = (*Channel)(nil)
	_ Container = (*DM)(nil)
)

func (c *Channel) Kind() ContainerKind      { return KindChannel }
func (c *Channel) ContainerID() int         { return c.ID }
func (c *Channel) DisplayName() string      { return c.Name }
func (c *Channel) Members() []int           { return c.AllMembers }
func (c *Channel) MessageIDs() []int        { return c.MessageList }
func (c *Channel) HasMember(userID int) bool { return slices.Contains(c.AllMembers, userID) }

// IsOwner reports whether userID is in the channel's owner list.
func (c *Channel) IsOwner(userID int) bool { return slices.Contains(c.OwnerMembers, userID) }

// OwnerCapable: channel owners, or global owners who are also members. A
// global owner outside the channel has no extra rights until they join.
func (c *Channel) OwnerCapable(u *User) bool {
	if u == nil {
		return false
	}
	return c.IsOwner(u.ID) || (u.IsGlobalOwner && c.HasMember(u.ID))
}

func (c *Channel) AppendMessage(messageID int) { c.MessageList = append(c.MessageList, messageID) }
func (c *Channel) RemoveMessage(messageID int) { c.MessageList = remove(c.MessageList, messageID) }

// AddMember appends userID to the member list.
func (c *Channel) AddMember(userID int) {
	if !c.HasMember(userID) {
		c.AllMembers = append(c.AllMembers, userID)
	}
}

// AddOwner appends userID to the owner list.
func (c *Channel) AddOwner(userID int) {
	if !c.IsOwner(userID) {
		c.OwnerMembers = append(c.OwnerMembers, userID)
	}
}

// RemoveMember drops userID from both the owner and member lists.
func (c *Channel) RemoveMember(userID int) {
	c.OwnerMembers = remove(c.OwnerMembers, userID)
	c.AllMembers = remove(c.AllMembers, userID)
}

// RemoveOwner drops userID from the owner list only.
func (c *Channel) RemoveOwner(userID int) { c.OwnerMembers = remove(c.OwnerMembers, userID) }

func (d *DM) Kind() ContainerKind      { return KindDM }
func (d *DM) ContainerID() int         { return d.ID }
func (d *DM) DisplayName() string      { return d.Name }
func (d *DM) Members() []int           { return d.MemberList }
func (d *DM) MessageIDs() []int        { return d.MessageList }
func (d *DM) HasMember(userID int) bool { return slices.Contains(d.MemberList, userID) }

// OwnerCapable: only the DM creator. Global owner status grants nothing here.
func (d *DM) OwnerCapable(u *User) bool {
	return u != nil && d.Owner != NoOwner && u.ID == d.Owner
}

func (d *DM) AppendMessage(messageID int) { d.MessageList = append(d.MessageList, messageID) }
func (d *DM) RemoveMessage(messageID int) { d.MessageList = remove(d.MessageList, messageID) }

// RemoveMember drops userID from the member list. The owner field is left alone.
func (d *DM) RemoveMember(userID int) { d.MemberList = remove(d.MemberList, userID) }

func remove(ids []int, id int) []int {
	return slices.DeleteFunc(ids, func(v int) bool { return v == id })
}
