package simpleposts

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ImageKeyPrefix is the object key prefix under which profile images are stored.
const ImageKeyPrefix = "images/"

// RegisterUser creates a user record for the authenticated principal. The
// username defaults to the local part of the email address. Registering an
// already known principal returns the existing record.
func (s *service) RegisterUser(ctx context.Context, creds Credentials) (*User, error) {
	principal, err := s.resolve(ctx, creds)
	if err != nil {
		return nil, err
	}

	existing, err := s.repository.GetUserByEmail(ctx, principal.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, &UserError{Op: "register", Err: err}
	}

	username, err := s.availableUsername(ctx, UsernameFromEmail(principal.Email))
	if err != nil {
		return nil, &UserError{Op: "register", Err: err}
	}

	now := s.now().UTC()
	user := &User{
		ID:        uuid.New(),
		Email:     principal.Email,
		Username:  username,
		Images:    []Image{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repository.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			// lost a race with a concurrent registration
			if existing, getErr := s.repository.GetUserByEmail(ctx, principal.Email); getErr == nil {
				return existing, nil
			}
		}
		return nil, &UserError{Op: "register", Err: err}
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String(), "username", user.Username)
	return user, nil
}

func (s *service) Profile(ctx context.Context, creds Credentials) (*User, error) {
	return s.authenticate(ctx, creds)
}

func (s *service) PublicProfile(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Message: "username is required"}
	}
	user, err := s.repository.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, &UserError{Op: "public_profile", Err: err}
	}
	return user, nil
}

func (s *service) ListUsers(ctx context.Context) ([]*User, error) {
	users, err := s.repository.ListUsers(ctx)
	if err != nil {
		return nil, &UserError{Op: "list", Err: err}
	}
	if users == nil {
		users = []*User{}
	}
	return users, nil
}

func (s *service) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	user, err := s.authenticate(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}

	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username == "" {
			return nil, &ValidationError{Field: "username", Message: "username cannot be empty"}
		}
		if username != user.Username {
			other, err := s.repository.GetUserByUsername(ctx, username)
			switch {
			case err == nil && other.ID != user.ID:
				return nil, &ValidationError{Field: "username", Message: "username is already taken"}
			case err != nil && !errors.Is(err, ErrUserNotFound):
				return nil, &UserError{Op: "update", Err: err}
			}
			user.Username = username
		}
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.About != nil {
		user.About = *req.About
	}
	if req.Images != nil {
		user.Images = append([]Image(nil), req.Images...)
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.repository.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, &ValidationError{Field: "username", Message: "username is already taken"}
		}
		return nil, &UserError{Op: "update", Err: err}
	}
	return user, nil
}

// Profile images

func (s *service) UploadImage(ctx context.Context, req UploadImageRequest) (*Image, error) {
	user, err := s.authenticate(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}
	if s.blobStore == nil {
		return nil, ErrImageStorageDisabled
	}
	if req.Reader == nil {
		return nil, &ValidationError{Field: "image", Message: "image is required"}
	}
	if !strings.HasPrefix(req.ContentType, "image/") {
		return nil, &ValidationError{Field: "image", Message: "only image uploads are accepted"}
	}

	publicID := uuid.New().String() + strings.ToLower(path.Ext(req.FileName))
	key := ImageKeyPrefix + publicID
	if err := s.blobStore.Upload(ctx, key, req.Reader, req.ContentType); err != nil {
		return nil, &StorageError{Backend: s.blobName, Key: key, Op: "upload", Err: err}
	}
	url, err := s.blobStore.URL(ctx, key)
	if err != nil {
		return nil, &StorageError{Backend: s.blobName, Key: key, Op: "url", Err: err}
	}

	image := Image{URL: url, PublicID: publicID}
	user.Images = append(user.Images, image)
	user.UpdatedAt = s.now().UTC()
	if err := s.repository.UpdateUser(ctx, user); err != nil {
		if delErr := s.blobStore.Delete(ctx, key); delErr != nil {
			s.logger.WarnContext(ctx, "failed to clean up image", "key", key, "error", delErr)
		}
		return nil, &UserError{Op: "upload_image", Err: err}
	}
	return &image, nil
}

func (s *service) RemoveImage(ctx context.Context, req RemoveImageRequest) error {
	user, err := s.authenticate(ctx, req.Credentials)
	if err != nil {
		return err
	}
	if s.blobStore == nil {
		return ErrImageStorageDisabled
	}

	idx := -1
	for i, img := range user.Images {
		if img.PublicID == req.PublicID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &UserError{Op: "remove_image", Err: ErrImageNotFound}
	}

	key := ImageKeyPrefix + req.PublicID
	if err := s.blobStore.Delete(ctx, key); err != nil {
		return &StorageError{Backend: s.blobName, Key: key, Op: "delete", Err: err}
	}

	user.Images = append(user.Images[:idx:idx], user.Images[idx+1:]...)
	user.UpdatedAt = s.now().UTC()
	if err := s.repository.UpdateUser(ctx, user); err != nil {
		return &UserError{Op: "remove_image", Err: err}
	}
	return nil
}

// UsernameFromEmail derives a default username from the local part of an
// email address.
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return strings.ToLower(local)
}

func (s *service) availableUsername(ctx context.Context, base string) (string, error) {
	if base == "" {
		base = "user"
	}
	candidate := base
	for i := 0; i < 5; i++ {
		_, err := s.repository.GetUserByUsername(ctx, candidate)
		if errors.Is(err, ErrUserNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = base + "-" + uuid.NewString()[:6]
	}
	return "", ErrUserExists
}
