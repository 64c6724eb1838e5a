package fixtures

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/textproto"
	"time"

	"github.com/welldanyogia/attachmentfx/internal/models"
)

// PNG encodes a w x h image with a red top left pixel
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// MultipartBuilder creates multipart/form-data request bodies with fluent API
type MultipartBuilder struct {
	body   *bytes.Buffer
	writer *multipart.Writer
}

// NewMultipartBuilder creates an empty MultipartBuilder
func NewMultipartBuilder() *MultipartBuilder {
	body := &bytes.Buffer{}
	return &MultipartBuilder{body: body, writer: multipart.NewWriter(body)}
}

// WithField adds a form value
func (b *MultipartBuilder) WithField(name, value string) *MultipartBuilder {
	if err := b.writer.WriteField(name, value); err != nil {
		panic(err)
	}
	return b
}

// WithFile adds a file part. An empty content type leaves the part untyped.
func (b *MultipartBuilder) WithFile(field, filename, contentType string, data []byte) *MultipartBuilder {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := b.writer.CreatePart(header)
	if err != nil {
		panic(err)
	}
	if _, err := part.Write(data); err != nil {
		panic(err)
	}
	return b
}

// Build closes the form and returns its body and content type
func (b *MultipartBuilder) Build() (*bytes.Buffer, string) {
	if err := b.writer.Close(); err != nil {
		panic(err)
	}
	return b.body, b.writer.FormDataContentType()
}

// MemberBuilder creates test Member instances with fluent API
type MemberBuilder struct {
	member models.Member
}

// NewMemberBuilder creates a new MemberBuilder with sensible defaults
func NewMemberBuilder() *MemberBuilder {
	return &MemberBuilder{
		member: models.Member{
			Name: "Karol",
		},
	}
}

// WithID sets the member ID
func (b *MemberBuilder) WithID(id uint) *MemberBuilder {
	b.member.ID = id
	return b
}

// WithName sets the member name
func (b *MemberBuilder) WithName(name string) *MemberBuilder {
	b.member.Name = name
	return b
}

// Build returns the constructed Member
func (b *MemberBuilder) Build() *models.Member {
	m := b.member
	return &m
}

// AttachmentBuilder creates test Attachment instances with fluent API
type AttachmentBuilder struct {
	attachment models.Attachment
}

// NewAttachmentBuilder creates a new AttachmentBuilder with sensible defaults
func NewAttachmentBuilder() *AttachmentBuilder {
	now := time.Now()
	return &AttachmentBuilder{
		attachment: models.Attachment{
			ID:          1,
			Type:        "Photo",
			Filename:    "photo.png",
			ContentType: "image/png",
			Size:        1024,
			Width:       16,
			Height:      16,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// WithID sets the attachment ID
func (b *AttachmentBuilder) WithID(id uint) *AttachmentBuilder {
	b.attachment.ID = id
	return b
}

// WithFilename sets the filename and content type
func (b *AttachmentBuilder) WithFilename(filename, contentType string) *AttachmentBuilder {
	b.attachment.Filename = filename
	b.attachment.ContentType = contentType
	return b
}

// WithOwner sets the owner reference
func (b *AttachmentBuilder) WithOwner(ownerType string, ownerID uint) *AttachmentBuilder {
	b.attachment.OwnerType = ownerType
	b.attachment.OwnerID = &ownerID
	return b
}

// Build returns the constructed Attachment
func (b *AttachmentBuilder) Build() *models.Attachment {
	a := b.attachment
	return &a
}
