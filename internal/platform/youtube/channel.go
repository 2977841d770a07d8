package youtube

import (
	"net/url"
	"path"
	"strings"

	"github.com/pysugar/creator-insights/internal/digger"
)

// ChannelURL is the public address of a channel id.
const ChannelURL = "https://www.youtube.com/channel/"

// Thumbnail is one channel image size.
type Thumbnail struct {
	URL string `json:"url"`
}

// Channel is a channels.list item with the snippet, statistics,
// topicDetails and auditDetails parts.
type Channel struct {
	ID      string `json:"id"`
	Snippet *struct {
		Title       string               `json:"title"`
		Description string               `json:"description"`
		CustomURL   string               `json:"customUrl"`
		PublishedAt string               `json:"publishedAt"`
		Thumbnails  map[string]Thumbnail `json:"thumbnails"`
	} `json:"snippet"`
	Statistics *struct {
		ViewCount             int64 `json:"viewCount,string"`
		SubscriberCount       int64 `json:"subscriberCount,string"`
		HiddenSubscriberCount bool  `json:"hiddenSubscriberCount"`
		VideoCount            int64 `json:"videoCount,string"`
	} `json:"statistics"`
	TopicDetails *struct {
		TopicCategories []string `json:"topicCategories"`
	} `json:"topicDetails"`
	AuditDetails *struct {
		OverallGoodStanding             bool `json:"overallGoodStanding"`
		CommunityGuidelinesGoodStanding bool `json:"communityGuidelinesGoodStanding"`
		CopyrightStrikesGoodStanding    bool `json:"copyrightStrikesGoodStanding"`
		ContentIDClaimsGoodStanding     bool `json:"contentIdClaimsGoodStanding"`
	} `json:"auditDetails"`
}

// ChannelListResponse is one page of channels.list.
type ChannelListResponse struct {
	NextPageToken string         `json:"nextPageToken"`
	Items         []Channel      `json:"items"`
	Error         *ResponseError `json:"error,omitempty"`
}

// Profile maps the channel onto a handle profile.
func (c Channel) Profile() digger.Profile {
	p := digger.Profile{
		UID:      c.ID,
		URL:      ChannelURL + c.ID,
		MetaData: map[string]any{},
	}
	if s := c.Snippet; s != nil {
		p.Username = s.Title
		p.Avatar = bestThumbnail(s.Thumbnails)
		if s.Description != "" {
			p.MetaData["description"] = s.Description
		}
		if s.PublishedAt != "" {
			p.MetaData["published_at"] = s.PublishedAt
		}
	}
	if s := c.Statistics; s != nil {
		p.FollowerCount = s.SubscriberCount
		p.MediaCount = s.VideoCount
	}
	if t := c.TopicDetails; t != nil && len(t.TopicCategories) > 0 {
		tags := make([]string, 0, len(t.TopicCategories))
		for _, topic := range t.TopicCategories {
			if tag := TopicTag(topic); tag != "" {
				tags = append(tags, tag)
			}
		}
		p.MetaData["tags"] = tags
	}
	if a := c.AuditDetails; a != nil {
		p.MetaData["overall_good_standing"] = a.OverallGoodStanding
		p.MetaData["community_guideline_good_standing"] = a.CommunityGuidelinesGoodStanding
		p.MetaData["copyright_strikes_good_standing"] = a.CopyrightStrikesGoodStanding
		p.MetaData["content_id_claims_good_standing"] = a.ContentIDClaimsGoodStanding
	}
	return p
}

// TopicTag turns a topic category URL such as
// https://en.wikipedia.org/wiki/Role-playing_video_game into
// "Role-playing video game".
func TopicTag(topic string) string {
	u, err := url.Parse(topic)
	if err != nil || u.Path == "" {
		return ""
	}
	tag := path.Base(u.Path)
	if tag == "/" || tag == "." {
		return ""
	}
	if unescaped, err := url.PathUnescape(tag); err == nil {
		tag = unescaped
	}
	return strings.ReplaceAll(tag, "_", " ")
}

func bestThumbnail(thumbs map[string]Thumbnail) string {
	for _, size := range []string{"high", "medium", "default"} {
		if t, ok := thumbs[size]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}
