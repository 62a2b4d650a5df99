package chat

import "github.com/palaver-chat/palaver/internal/models"

// MediaSet is the projection of one conversation's log into its shared
// media, relative order preserved within each subset.
type MediaSet struct {
	Images    []models.MediaReference
	Files     []models.MediaReference
	Locations []models.MediaReference
}

// PartitionMedia filters an ordered message snapshot into images, files
// and locations. Pure and stateless: it is recomputed whenever the
// underlying snapshot changes and never written back to the store.
func PartitionMedia(msgs []models.Message) MediaSet {
	var set MediaSet
	for _, m := range msgs {
		ref := models.MediaReference{
			MessageID: m.ID,
			Kind:      m.Kind,
			SenderID:  m.SenderID,
			CreatedAt: m.CreatedAt,
		}
		switch m.Kind {
		case models.KindImage:
			ref.URL = m.ImageURL
			set.Images = append(set.Images, ref)
		case models.KindFile:
			if m.File != nil {
				ref.URL = m.File.URL
				ref.Name = m.File.Name
			}
			set.Files = append(set.Files, ref)
		case models.KindLocation:
			ref.Location = m.Location
			set.Locations = append(set.Locations, ref)
		}
	}
	return set
}
