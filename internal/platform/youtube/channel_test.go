package youtube

import (
	"encoding/json"
	"testing"
)

const channelJSON = `{
	"id": "UCabc",
	"snippet": {
		"title": "Cooking With Ana",
		"description": "weekly recipes",
		"publishedAt": "2016-02-01T10:00:00Z",
		"thumbnails": {
			"default": {"url": "https://yt3.example/default.jpg"},
			"high": {"url": "https://yt3.example/high.jpg"}
		}
	},
	"statistics": {"viewCount": "99000", "subscriberCount": "1520", "hiddenSubscriberCount": false, "videoCount": "87"},
	"topicDetails": {"topicCategories": ["https://en.wikipedia.org/wiki/Food", "https://en.wikipedia.org/wiki/Lifestyle_(sociology)"]},
	"auditDetails": {"overallGoodStanding": true, "communityGuidelinesGoodStanding": true, "copyrightStrikesGoodStanding": false, "contentIdClaimsGoodStanding": true}
}`

func TestChannelProfile(t *testing.T) {
	var ch Channel
	if err := json.Unmarshal([]byte(channelJSON), &ch); err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := ch.Profile()

	if p.UID != "UCabc" || p.URL != ChannelURL+"UCabc" {
		t.Fatalf("unexpected identity: %+v", p)
	}
	if p.Username != "Cooking With Ana" || p.Avatar != "https://yt3.example/high.jpg" {
		t.Fatalf("unexpected snippet fields: %+v", p)
	}
	if p.FollowerCount != 1520 || p.MediaCount != 87 {
		t.Fatalf("counts = %d/%d", p.FollowerCount, p.MediaCount)
	}
	tags, _ := p.MetaData["tags"].([]string)
	if len(tags) != 2 || tags[0] != "Food" || tags[1] != "Lifestyle (sociology)" {
		t.Fatalf("tags = %v", p.MetaData["tags"])
	}
	if p.MetaData["copyright_strikes_good_standing"] != false || p.MetaData["overall_good_standing"] != true {
		t.Fatalf("audit flags = %v", p.MetaData)
	}
}

func TestChannelProfile_Sparse(t *testing.T) {
	p := Channel{ID: "UCbare"}.Profile()
	if p.Username != "" || p.FollowerCount != 0 || len(p.MetaData) != 0 {
		t.Fatalf("unexpected profile for a bare channel: %+v", p)
	}
}

func TestTopicTag(t *testing.T) {
	tests := map[string]string{
		"https://en.wikipedia.org/wiki/Role-playing_video_game": "Role-playing video game",
		"https://en.wikipedia.org/wiki/Music":                   "Music",
		"https://en.wikipedia.org/":                             "",
		"":                                                      "",
	}
	for in, want := range tests {
		if got := TopicTag(in); got != want {
			t.Fatalf("TopicTag(%q) = %q, want %q", in, got, want)
		}
	}
}
