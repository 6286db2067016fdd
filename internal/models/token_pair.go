package models

// TokenPair: пара токенов, выдаваемая при регистрации, входе и обновлении.
//
// Описание:
//   - AccessToken: JWT на 15 минут, подписан access-секретом;
//   - RefreshToken: JWT на 7 дней, подписан refresh-секретом; на сервере
//     хранится только его argon2id-хэш.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
