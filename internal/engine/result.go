package engine

// PrimaryResult is the overview data set extracted from an archive.
type PrimaryResult struct {
	User           *User         `json:"user"`
	TopDMs         []TopDM       `json:"topDms"`
	TopChannels    []TopChannel  `json:"topChannels"`
	Guilds         []Guild       `json:"guilds"`
	DMChannelCount int           `json:"dmChannelCount"`
	ChannelCount   int           `json:"channelCount"`
	MessageCount   int           `json:"messageCount"`
	CharacterCount int           `json:"characterCount"`
	HoursValues    []int         `json:"hoursValues"`
	FavoriteWords  []PhraseCount `json:"favoriteWords"`
	FavoriteEmotes []PhraseCount `json:"favoriteEmotes"`
}

// User is the account owner profile.
type User struct {
	ID            string         `json:"id"`
	Username      string         `json:"username"`
	GlobalName    *string        `json:"globalName,omitempty"`
	Discriminator int            `json:"discriminator"`
	AvatarHash    *string        `json:"avatarHash"`
	Payments      []Payment      `json:"payments"`
	Relationships []Relationship `json:"relationships"`
}

// Relationship is a friend/blocked entry.
type Relationship struct {
	User RelationshipUser `json:"user"`
}

// RelationshipUser is the other side of a relationship.
type RelationshipUser struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	GlobalName    *string `json:"globalName,omitempty"`
	Discriminator string  `json:"discriminator"`
	Avatar        *string `json:"avatar,omitempty"`
}

// Payment is one billing record. Amount is in minor units.
type Payment struct {
	Status      int    `json:"status"`
	Currency    string `json:"currency"`
	Amount      int64  `json:"amount"`
	CreatedAt   string `json:"createdAt"`
	Description string `json:"description"`
}

// TopDM is a direct-message channel ranked by message count.
type TopDM struct {
	ID           string `json:"id"`
	DMUserID     string `json:"dmUserId"`
	MessageCount int    `json:"messageCount"`
}

// TopChannel is a guild channel ranked by message count.
type TopChannel struct {
	ID           string  `json:"id"`
	Name         *string `json:"name"`
	MessageCount int     `json:"messageCount"`
	GuildName    *string `json:"guildName"`
	GuildID      *string `json:"guildId"`
}

// Guild is a server the user belongs to.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PhraseCount counts a word or emote.
type PhraseCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// AnalyticsResult is the event statistics data set.
type AnalyticsResult struct {
	ApplicationCreated      int               `json:"applicationCreated"`
	BotTokenCompromised     int               `json:"botTokenCompromised"`
	EmailOpened             int               `json:"emailOpened"`
	LoginSuccessful         int               `json:"loginSuccessful"`
	UserAvatarUpdated       int               `json:"userAvatarUpdated"`
	AppOpened               int               `json:"appOpened"`
	NotificationClicked     int               `json:"notificationClicked"`
	AppCrashed              int               `json:"appCrashed"`
	AppNativeCrash          int               `json:"appNativeCrash"`
	OAuth2AuthorizeAccepted int               `json:"oauth2AuthorizeAccepted"`
	RemoteAuthLogin         int               `json:"remoteAuthLogin"`
	CaptchaServed           int               `json:"captchaServed"`
	VoiceMessageRecorded    int               `json:"voiceMessageRecorded"`
	MessageReported         int               `json:"messageReported"`
	MessageEdited           int               `json:"messageEdited"`
	PremiumUpsellViewed     int               `json:"premiumUpsellViewed"`
	ApplicationCommandUsed  int               `json:"applicationCommandUsed"`
	AddReaction             int               `json:"addReaction"`
	GuildJoined             int               `json:"guildJoined"`
	JoinVoiceChannel        int               `json:"joinVoiceChannel"`
	LeaveVoiceChannel       int               `json:"leaveVoiceChannel"`
	MostUsedCommands        []MostUsedCommand `json:"mostUsedCommands"`
	AllEvents               int               `json:"allEvents"`
}

// MostUsedCommand is an application command ranked by use count.
type MostUsedCommand struct {
	CommandID          string  `json:"commandId"`
	ApplicationID      string  `json:"applicationId"`
	CommandName        *string `json:"commandName,omitempty"`
	CommandDescription *string `json:"commandDescription,omitempty"`
	Count              int     `json:"count"`
}
