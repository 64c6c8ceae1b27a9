package user

import "github.com/neperienx/bookpipeline/internal/models"

func toResponse(u *models.UserModel) *userResponse {
	return &userResponse{
		ID: u.ID, Username: u.Username, Name: u.Name,
		Introduce: u.Introduce, Avatar: u.Avatar, Mail: u.Mail, URL: u.URL,
		SocialIDs:     nonNilSocialIDs(u.SocialIDs),
		LastLoginTime: u.LastLoginTime, LastLoginIP: u.LastLoginIP,
	}
}

func toPublicResponse(u *models.UserModel) *publicUserResponse {
	return &publicUserResponse{
		ID: u.ID, Username: u.Username, Name: u.Name,
		Introduce: u.Introduce, Avatar: u.Avatar, URL: u.URL,
		SocialIDs: nonNilSocialIDs(u.SocialIDs),
	}
}

func nonNilSocialIDs(ids map[string]string) map[string]string {
	if ids == nil {
		return map[string]string{}
	}
	return ids
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
