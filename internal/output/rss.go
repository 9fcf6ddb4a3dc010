// Package output renders site documents and writes them to disk or S3.
package output

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/DeafMist/campus-feed/backend/internal/models"
	"github.com/DeafMist/campus-feed/backend/internal/processing"
)

const (
	contentNS = "http://purl.org/rss/1.0/modules/content/"
	atomNS    = "http://www.w3.org/2005/Atom"

	descriptionRunes = 50
)

type rssDocument struct {
	XMLName   xml.Name   `xml:"rss"`
	Version   string     `xml:"version,attr"`
	ContentNS string     `xml:"xmlns:content,attr"`
	AtomNS    string     `xml:"xmlns:atom,attr"`
	Channel   rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description,omitempty"`
	Content     cdata    `xml:"content:encoded"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category"`
	GUID        rssGUID  `xml:"guid"`
	PubDate     string   `xml:"pubDate"`
	Updated     string   `xml:"atom:updated,omitempty"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

// RenderRSS encodes doc as an RSS 2.0 feed.
func RenderRSS(doc *models.SiteDocument) ([]byte, error) {
	feed := rssDocument{
		Version:   "2.0",
		ContentNS: contentNS,
		AtomNS:    atomNS,
		Channel: rssChannel{
			Title:       doc.Title,
			Link:        doc.Source,
			Description: doc.Description,
			Items:       make([]rssItem, 0, len(doc.Items)),
		},
	}
	for _, post := range doc.Items {
		feed.Channel.Items = append(feed.Channel.Items, toItem(post))
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(feed); err != nil {
		return nil, fmt.Errorf("encode rss: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func toItem(post models.Post) rssItem {
	item := rssItem{
		Title:       post.Title,
		Link:        post.URL,
		Description: processing.Excerpt(post.Content, descriptionRunes),
		Content:     cdata{Value: post.Content},
		Author:      post.Author,
		Categories:  post.Category,
		GUID:        rssGUID{Value: post.ID},
		PubDate:     post.CreatedAt.Format(time.RFC1123Z),
	}
	if post.UpdatedAt != nil {
		item.Updated = post.UpdatedAt.Format(time.RFC3339)
	}
	return item
}
